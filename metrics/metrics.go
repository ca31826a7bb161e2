// Package metrics exposes chatstream activity as Prometheus collectors.
// Counters are fed by Observer, which turns observability events into
// samples, and by HubCollector, which reads the hub's connection counters
// at scrape time.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_jobs_total",
		Help: "Generation jobs by outcome",
	}, []string{"outcome"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatstream_job_duration_ms",
		Help:    "Duration of completed generation jobs in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
	}, []string{"route"})

	jobTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatstream_job_tokens",
		Help:    "Tokens in completed answers",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000, 4000},
	})

	routesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_routes_total",
		Help: "Routing decisions by route",
	}, []string{"route"})

	lookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_lookups_total",
		Help: "Data lookups by status",
	}, []string{"status"})

	degradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_degraded_answers_total",
		Help: "Answers replaced by an apology, by failure kind",
	}, []string{"kind"})

	persistTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_persist_events_total",
		Help: "Turn write retries and failures",
	}, []string{"result"})

	sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatstream_sessions_total",
		Help: "Session lifecycle events",
	}, []string{"event"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// Collectors exposes all event-driven collectors for registration with a
// custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		jobsTotal, jobDuration, jobTokens, routesTotal, lookupsTotal, degradedTotal, persistTotal, sessionsTotal,
	}
}

// Handler serves the default registry, registering the collectors on first
// use.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}

// Register adds c to the default registry. A collector with the same
// descriptors that is already registered is replaced by c, so the most
// recently built hub is the one reported.
func Register(c prometheus.Collector) error {
	ensureRegistered()
	err := prometheus.Register(c)
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return err
	}
	if are.ExistingCollector == c {
		return nil
	}
	prometheus.Unregister(are.ExistingCollector)
	return prometheus.Register(c)
}

// IncJob records a job outcome.
func IncJob(outcome string) {
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJob records a completed job.
func ObserveJob(route string, d time.Duration, tokens int) {
	jobsTotal.WithLabelValues("complete").Inc()
	jobDuration.WithLabelValues(route).Observe(float64(d.Milliseconds()))
	jobTokens.Observe(float64(tokens))
}

// IncRoute records a routing decision.
func IncRoute(route string) {
	routesTotal.WithLabelValues(route).Inc()
}

// IncLookup records a lookup outcome.
func IncLookup(status string) {
	lookupsTotal.WithLabelValues(status).Inc()
}

// IncDegraded records an apology answer.
func IncDegraded(kind string) {
	degradedTotal.WithLabelValues(kind).Inc()
}

// IncPersist records a turn write retry or failure.
func IncPersist(result string) {
	persistTotal.WithLabelValues(result).Inc()
}

// IncSession records a session lifecycle event.
func IncSession(event string) {
	sessionsTotal.WithLabelValues(event).Inc()
}
