package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRPC(t *testing.T) {
	before := testutil.ToFloat64(rpcRequests.WithLabelValues("getSlot", OutcomeOK))
	RecordRPC("getSlot", OutcomeOK, 3*time.Millisecond)
	after := testutil.ToFloat64(rpcRequests.WithLabelValues("getSlot", OutcomeOK))
	if after != before+1 {
		t.Errorf("requests = %v, want %v", after, before+1)
	}
}

func TestRecordTransactionDefaultsLabel(t *testing.T) {
	RecordTransaction("", OutcomeTimeout, 0)
	if got := testutil.ToFloat64(transactions.WithLabelValues("unlabelled", OutcomeTimeout)); got < 1 {
		t.Errorf("unlabelled timeout count = %v, want >= 1", got)
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":               "/",
		"/":              "/",
		"/metrics":       "/metrics",
		"/healthz/":      "/healthz",
		"/accounts/abc":  "/other",
		"/metrics/extra": "/metrics",
	}
	for in, want := range tests {
		if got := canonicalPath(in); got != want {
			t.Errorf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordPoll("slot")
	rec := httptest.NewRecorder()
	InstrumentHandler(Handler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ledger_client_poll_iterations_total") {
		t.Error("poll collector missing from exposition")
	}
}

func TestConfirmDurationHelp(t *testing.T) {
	ch := make(chan *prometheus.Desc, 1)
	confirmDuration.Describe(ch)
	desc := (<-ch).String()
	if !strings.Contains(desc, "compiling a transaction") {
		t.Errorf("confirm duration desc = %s, want help measured from compile", desc)
	}
}
