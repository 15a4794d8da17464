// Package metrics exposes Prometheus collectors for the ledger client.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ledger client collectors.
	Registry = prometheus.NewRegistry()

	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_client",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests sent.",
		},
		[]string{"method", "outcome"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_client",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of JSON-RPC requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method"},
	)

	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_client",
			Subsystem: "tx",
			Name:      "transactions_total",
			Help:      "Transactions by label and final outcome.",
		},
		[]string{"label", "outcome"},
	)

	confirmDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger_client",
			Subsystem: "tx",
			Name:      "confirm_duration_seconds",
			Help:      "Time from compiling a transaction to its final outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"label"},
	)

	pollIterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_client",
			Subsystem: "poll",
			Name:      "iterations_total",
			Help:      "Number of poll checks performed while waiting.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger_client",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of ops endpoint requests handled.",
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTransport = "transport"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
)

func init() {
	Registry.MustRegister(
		rpcRequests,
		rpcDuration,
		transactions,
		confirmDuration,
		pollIterations,
		httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRPC records one JSON-RPC round trip.
func RecordRPC(method, outcome string, duration time.Duration) {
	if method == "" {
		method = "unknown"
	}
	rpcRequests.WithLabelValues(method, outcome).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTransaction records the final outcome of a submitted transaction.
func RecordTransaction(label, outcome string, elapsed time.Duration) {
	if label == "" {
		label = "unlabelled"
	}
	transactions.WithLabelValues(label, outcome).Inc()
	if elapsed > 0 {
		confirmDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	}
}

// RecordPoll counts one poll check of the given kind ("signature", "slot").
func RecordPoll(kind string) {
	pollIterations.WithLabelValues(kind).Inc()
}

// InstrumentHandler wraps the ops handler with request counting.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(strings.ToUpper(r.Method), canonicalPath(r.URL.Path), strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	switch first := strings.SplitN(trimmed, "/", 2)[0]; first {
	case "metrics", "healthz":
		return "/" + first
	default:
		return "/other"
	}
}
