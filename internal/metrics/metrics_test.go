package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.Message(OutcomeAccepted)
	m.Dispatch("ping", true, "ok", time.Millisecond)
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Message(OutcomeAccepted)
	m.Message(OutcomeUnknownSession)
	m.Dispatch("tools/call", true, "ok", 5*time.Millisecond)
	m.Dispatch("made/up", false, "method_not_found", time.Millisecond)

	if got := testutil.ToFloat64(m.sessionsOpen); got != 1 {
		t.Fatalf("sessions_open = %v", got)
	}
	if got := testutil.ToFloat64(m.sessionsOpened); got != 2 {
		t.Fatalf("sessions_opened_total = %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues(OutcomeUnknownSession)); got != 1 {
		t.Fatalf("messages_total{unknown_session} = %v", got)
	}
	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("unknown", "method_not_found")); got != 1 {
		t.Fatalf("dispatch_total{unknown} = %v", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.SessionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), "mcp_sse_sessions_open 1") {
		t.Fatalf("missing gauge in exposition:\n%s", body)
	}
}
