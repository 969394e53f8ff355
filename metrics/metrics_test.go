package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soocke/pull-bot-go/domain/pull"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestObserverUpdatesCollectors(t *testing.T) {
	m := New()
	m.Pulled()
	m.Pulled()
	m.CycleCompleted(1)
	m.Clicked("draw")
	m.Matched("draw", 20*time.Millisecond)
	m.CaptureFailed()
	m.StateChanged(pull.StateIdle, pull.StateEvaluating)

	body := scrape(t, m)
	for _, want := range []string{
		"pullbot_pulls_total 2",
		"pullbot_cycles_total 1",
		"pullbot_capture_failures_total 1",
		`pullbot_clicks_total{step="draw"} 1`,
		`pullbot_match_duration_seconds_count{step="draw"} 1`,
		"pullbot_rare_outcomes_count 1",
		"pullbot_state 4",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestStartServerAndShutdown(t *testing.T) {
	m := New()
	if err := m.StartServer("127.0.0.1:0", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := New().Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown without server: %v", err)
	}
}
