package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tailored-agentic-units/chatstream/hub"
)

// HubCollector reports a hub's atomic counters at scrape time.
type HubCollector struct {
	metrics *hub.Metrics

	connections      *prometheus.Desc
	connectionsTotal *prometheus.Desc
	framesSent       *prometheus.Desc
	framesRecv       *prometheus.Desc
	framesDropped    *prometheus.Desc
	framesRejected   *prometheus.Desc
	rateLimited      *prometheus.Desc
	slowConsumers    *prometheus.Desc
}

func NewHubCollector(m *hub.Metrics) *HubCollector {
	return &HubCollector{
		metrics:          m,
		connections:      prometheus.NewDesc("chatstream_hub_connections", "Open WebSocket connections", nil, nil),
		connectionsTotal: prometheus.NewDesc("chatstream_hub_connections_total", "WebSocket connections accepted", nil, nil),
		framesSent:       prometheus.NewDesc("chatstream_hub_frames_sent_total", "Frames written to clients", nil, nil),
		framesRecv:       prometheus.NewDesc("chatstream_hub_frames_received_total", "Frames read from clients", nil, nil),
		framesDropped:    prometheus.NewDesc("chatstream_hub_frames_dropped_total", "Outbound frames dropped under the drop policy", nil, nil),
		framesRejected:   prometheus.NewDesc("chatstream_hub_frames_rejected_total", "Inbound frames rejected as invalid", nil, nil),
		rateLimited:      prometheus.NewDesc("chatstream_hub_rate_limited_total", "Inbound frames refused by the rate limiter", nil, nil),
		slowConsumers:    prometheus.NewDesc("chatstream_hub_slow_consumers_total", "Connections closed because the client stopped reading", nil, nil),
	}
}

func (c *HubCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.connectionsTotal
	ch <- c.framesSent
	ch <- c.framesRecv
	ch <- c.framesDropped
	ch <- c.framesRejected
	ch <- c.rateLimited
	ch <- c.slowConsumers
}

func (c *HubCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.Connections))
	ch <- prometheus.MustNewConstMetric(c.connectionsTotal, prometheus.CounterValue, float64(s.ConnectionsTotal))
	ch <- prometheus.MustNewConstMetric(c.framesSent, prometheus.CounterValue, float64(s.FramesSent))
	ch <- prometheus.MustNewConstMetric(c.framesRecv, prometheus.CounterValue, float64(s.FramesRecv))
	ch <- prometheus.MustNewConstMetric(c.framesDropped, prometheus.CounterValue, float64(s.FramesDropped))
	ch <- prometheus.MustNewConstMetric(c.framesRejected, prometheus.CounterValue, float64(s.FramesRejected))
	ch <- prometheus.MustNewConstMetric(c.rateLimited, prometheus.CounterValue, float64(s.RateLimited))
	ch <- prometheus.MustNewConstMetric(c.slowConsumers, prometheus.CounterValue, float64(s.SlowConsumers))
}
