// Package metrics exposes Prometheus collectors for the API server.
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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pretimmo",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pretimmo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pretimmo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	diagnosticRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pretimmo",
			Subsystem: "diagnostics",
			Name:      "runs_total",
			Help:      "Total number of diagnostic runs.",
		},
		[]string{"scope"},
	)

	diagnosticScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pretimmo",
			Subsystem: "diagnostics",
			Name:      "score",
			Help:      "Distribution of computed readiness scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		},
	)

	invitations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pretimmo",
			Subsystem: "invitations",
			Name:      "events_total",
			Help:      "Invitation lifecycle events.",
		},
		[]string{"event"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pretimmo",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events received.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		diagnosticRuns,
		diagnosticScores,
		invitations,
		webhookEvents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordDiagnosticRun records a completed diagnostic and its score.
// Scope is "dossier" or "self".
func RecordDiagnosticRun(scope string, score int) {
	diagnosticRuns.WithLabelValues(scope).Inc()
	diagnosticScores.Observe(float64(score))
}

// RecordInvitation records an invitation lifecycle event, one of "issued",
// "redeemed" or "rejected".
func RecordInvitation(event string) {
	invitations.WithLabelValues(event).Inc()
}

// RecordWebhookEvent records a received Stripe webhook event.
func RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses resource IDs so the label set stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}

	resource := parts[1]
	switch {
	case len(parts) == 2:
		return "/api/" + resource
	case resource == "invitations":
		return "/api/invitations/:token"
	case len(parts) == 3:
		return "/api/" + resource + "/:id"
	default:
		return "/api/" + resource + "/:id/" + parts[3]
	}
}
