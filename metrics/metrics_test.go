package metrics_test

import (
	"bufio"
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tailored-agentic-units/chatstream/generation"
	"github.com/tailored-agentic-units/chatstream/hub"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/metrics"
	"github.com/tailored-agentic-units/chatstream/observability"
	"github.com/tailored-agentic-units/chatstream/session"
)

func emit(typ observability.EventType, data map[string]any) {
	metrics.NewObserver().OnEvent(context.Background(), observability.NewEvent(typ, observability.LevelInfo, "test", data))
}

// scrape returns the value of the sample line starting with series, or 0
// when it is absent.
func scrape(t *testing.T, series string) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, series+" ") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, series)), 64)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		return v
	}
	return 0
}

func TestObserver_Counts(t *testing.T) {
	tests := []struct {
		name   string
		typ    observability.EventType
		data   map[string]any
		series string
	}{
		{name: "timeout", typ: session.EventJobTimeout, series: `chatstream_jobs_total{outcome="timeout"}`},
		{name: "stopped", typ: session.EventJobStopped, series: `chatstream_jobs_total{outcome="stopped"}`},
		{name: "failed", typ: session.EventJobFailed, series: `chatstream_jobs_total{outcome="failed"}`},
		{name: "busy", typ: session.EventBusy, series: `chatstream_jobs_total{outcome="busy"}`},
		{name: "route", typ: session.EventRouteDecision, data: map[string]any{"route": "LOOKUP_THEN_ANSWER"}, series: `chatstream_routes_total{route="LOOKUP_THEN_ANSWER"}`},
		{name: "persist retry", typ: session.EventPersistRetry, series: `chatstream_persist_events_total{result="retry"}`},
		{name: "expired", typ: session.EventExpired, series: `chatstream_sessions_total{event="expired"}`},
		{name: "lookup blocked", typ: lookup.EventBlocked, series: `chatstream_lookups_total{status="blocked"}`},
		{name: "degraded", typ: generation.EventDegraded, data: map[string]any{"kind": generation.KindTimeout}, series: `chatstream_degraded_answers_total{kind="timeout"}`},
		{name: "missing label", typ: session.EventRouteDecision, series: `chatstream_routes_total{route="unknown"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := scrape(t, tt.series)
			emit(tt.typ, tt.data)
			if got := scrape(t, tt.series) - before; got != 1 {
				t.Errorf("got delta %v, want 1", got)
			}
		})
	}
}

func TestObserver_CompletedJob(t *testing.T) {
	count := `chatstream_job_duration_ms_count{route="DIRECT"}`
	sum := `chatstream_job_duration_ms_sum{route="DIRECT"}`
	before, beforeSum := scrape(t, count), scrape(t, sum)

	emit(session.EventJobComplete, map[string]any{
		"route":       "DIRECT",
		"tokens":      2,
		"duration_ms": int64(1500),
	})

	if got := scrape(t, count) - before; got != 1 {
		t.Errorf("got count delta %v, want 1", got)
	}
	if got := scrape(t, sum) - beforeSum; got != 1500 {
		t.Errorf("got sum delta %v, want 1500", got)
	}
}

func TestObserver_IgnoresUnknownEvents(t *testing.T) {
	series := `chatstream_jobs_total{outcome="failed"}`
	before := scrape(t, series)
	emit("hub.conn.open", nil)
	if got := scrape(t, series); got != before {
		t.Errorf("unknown event changed counters: %v -> %v", before, got)
	}
}

func TestObserveJob(t *testing.T) {
	series := `chatstream_jobs_total{outcome="complete"}`
	before := scrape(t, series)
	metrics.ObserveJob("DIRECT", 20*time.Millisecond, 4)
	if got := scrape(t, series) - before; got != 1 {
		t.Errorf("got delta %v, want 1", got)
	}
}

func TestHubCollector(t *testing.T) {
	m := hub.NewMetrics()
	m.RecordConnection(1)
	m.RecordConnection(1)
	m.RecordConnection(-1)
	m.RecordFrameDropped(2)

	c := metrics.NewHubCollector(m)

	if got := testutil.CollectAndCount(c); got != 8 {
		t.Errorf("got %d metrics, want 8", got)
	}

	expected := `
# HELP chatstream_hub_connections Open WebSocket connections
# TYPE chatstream_hub_connections gauge
chatstream_hub_connections 1
# HELP chatstream_hub_connections_total WebSocket connections accepted
# TYPE chatstream_hub_connections_total counter
chatstream_hub_connections_total 2
# HELP chatstream_hub_frames_dropped_total Outbound frames dropped under the drop policy
# TYPE chatstream_hub_frames_dropped_total counter
chatstream_hub_frames_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"chatstream_hub_connections", "chatstream_hub_connections_total", "chatstream_hub_frames_dropped_total"); err != nil {
		t.Error(err)
	}
}

func TestRegister_SameHubTwice(t *testing.T) {
	m := hub.NewMetrics()
	m.RecordFrameSent(3)

	if err := metrics.Register(metrics.NewHubCollector(m)); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := metrics.Register(metrics.NewHubCollector(m)); err != nil {
		t.Errorf("second register failed: %v", err)
	}
	if got := scrape(t, "chatstream_hub_frames_sent_total"); got != 3 {
		t.Errorf("got %v frames sent, want 3", got)
	}
}

func TestRegister_ReplacesEarlierHub(t *testing.T) {
	first := hub.NewMetrics()
	first.RecordFrameRejected(2)
	second := hub.NewMetrics()
	second.RecordFrameRejected(7)

	if err := metrics.Register(metrics.NewHubCollector(first)); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := metrics.Register(metrics.NewHubCollector(second)); err != nil {
		t.Fatalf("second register failed: %v", err)
	}
	if got := scrape(t, "chatstream_hub_frames_rejected_total"); got != 7 {
		t.Errorf("got %v frames rejected, want 7 (latest hub)", got)
	}

	second.RecordFrameRejected(1)
	if got := scrape(t, "chatstream_hub_frames_rejected_total"); got != 8 {
		t.Errorf("got %v frames rejected, want 8", got)
	}
}
