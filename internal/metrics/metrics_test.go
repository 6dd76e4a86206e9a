package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(evaluationsTotal.WithLabelValues("acme", "INTERVAL", "cooldown"))
	RecordEvaluation("acme", "INTERVAL", "cooldown")
	RecordEvaluation("acme", "INTERVAL", "cooldown")

	if got := testutil.ToFloat64(evaluationsTotal.WithLabelValues("acme", "INTERVAL", "cooldown")); got != before+2 {
		t.Errorf("expected %v evaluations, got %v", before+2, got)
	}
}

func TestRecordTrigger(t *testing.T) {
	RecordTrigger("acme", "ONCE", true)

	if got := testutil.ToFloat64(triggersTotal.WithLabelValues("acme", "ONCE", "true")); got < 1 {
		t.Errorf("expected dry-run trigger to be counted, got %v", got)
	}
}

func TestObservePass(t *testing.T) {
	ObservePass(20*time.Millisecond, 7)

	if got := testutil.ToFloat64(schedulesActive); got != 7 {
		t.Errorf("expected 7 enabled schedules, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	RecordEventProcessed("completed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"cadence_http_requests_total", "cadence_events_processed_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}
