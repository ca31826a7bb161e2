package hub

import "sync/atomic"

type MetricsSnapshot struct {
	Connections      int64
	ConnectionsTotal int64
	FramesSent       int64
	FramesRecv       int64
	FramesDropped    int64
	FramesRejected   int64
	RateLimited      int64
	SlowConsumers    int64
}

type Metrics struct {
	connections      atomic.Int64
	connectionsTotal atomic.Int64
	framesSent       atomic.Int64
	framesRecv       atomic.Int64
	framesDropped    atomic.Int64
	framesRejected   atomic.Int64
	rateLimited      atomic.Int64
	slowConsumers    atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordConnection(delta int) {
	m.connections.Add(int64(delta))
	if delta > 0 {
		m.connectionsTotal.Add(int64(delta))
	}
}

func (m *Metrics) RecordFrameSent(delta int) {
	m.framesSent.Add(int64(delta))
}

func (m *Metrics) RecordFrameRecv(delta int) {
	m.framesRecv.Add(int64(delta))
}

func (m *Metrics) RecordFrameDropped(delta int) {
	m.framesDropped.Add(int64(delta))
}

func (m *Metrics) RecordFrameRejected(delta int) {
	m.framesRejected.Add(int64(delta))
}

func (m *Metrics) RecordRateLimited(delta int) {
	m.rateLimited.Add(int64(delta))
}

// RecordSlowConsumer counts connections closed because their outbound
// queue stayed full past the send timeout.
func (m *Metrics) RecordSlowConsumer(delta int) {
	m.slowConsumers.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Connections:      m.connections.Load(),
		ConnectionsTotal: m.connectionsTotal.Load(),
		FramesSent:       m.framesSent.Load(),
		FramesRecv:       m.framesRecv.Load(),
		FramesDropped:    m.framesDropped.Load(),
		FramesRejected:   m.framesRejected.Load(),
		RateLimited:      m.rateLimited.Load(),
		SlowConsumers:    m.slowConsumers.Load(),
	}
}
