// Package metrics holds the prometheus collectors of the voice assistant.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voice_assistant"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeEmpty   = "empty"
)

// HTTP metrics (counter/histogram, incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Provider metrics (incremented directly by the services).
var (
	SynthesisAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_attempts_total",
		Help:      "Speech synthesis engine invocations, including retries.",
	}, []string{"engine", "outcome"})

	SynthesisRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_requests_total",
		Help:      "Speech synthesis calls by final outcome.",
	}, []string{"engine", "outcome"})

	SynthesisArtifactBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "synthesis_artifact_bytes",
		Help:      "Size of synthesized audio artifacts.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8), // 1KB → 16MB
	})

	ProviderCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Chat and recognition provider calls by error kind.",
	}, []string{"service", "provider", "kind"})

	GateRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_rejections_total",
		Help:      "Chat requests rejected by parent-mode rules.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SynthesisAttemptsTotal,
		SynthesisRequestsTotal,
		SynthesisArtifactBytes,
		ProviderCallsTotal,
		GateRejectionsTotal,
	)
}

// ObserveProviderCall records the result of a chat or recognition call.
// A nil kind is recorded as "ok".
func ObserveProviderCall(service, provider, kind string) {
	if kind == "" {
		kind = "ok"
	}

	ProviderCallsTotal.WithLabelValues(service, provider, kind).Inc()
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := ""
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			pattern = routeCtx.RoutePattern()
		}

		if pattern == "" {
			pattern = "unknown"
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
