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
			Namespace: "agent_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agent_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	purchaseAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_layer",
			Subsystem: "purchase",
			Name:      "attempts_total",
			Help:      "Total number of purchase attempts by outcome.",
		},
		[]string{"outcome"},
	)

	purchaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agent_layer",
			Subsystem: "purchase",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of purchase attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~3.5min
		},
		[]string{"outcome"},
	)

	hydrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_layer",
			Subsystem: "entitlements",
			Name:      "hydrations_total",
			Help:      "Total number of entitlement cache hydrations.",
		},
		[]string{"success"},
	)

	hydrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agent_layer",
			Subsystem: "entitlements",
			Name:      "hydration_duration_seconds",
			Help:      "Duration of entitlement cache hydrations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		purchaseAttempts,
		purchaseDuration,
		hydrations,
		hydrationDuration,
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

// RecordPurchase records metrics for a completed purchase attempt.
func RecordPurchase(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	purchaseAttempts.WithLabelValues(outcome).Inc()
	purchaseDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordHydration records metrics for an entitlement cache hydration.
func RecordHydration(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	result := "false"
	if success {
		result = "true"
	}
	hydrations.WithLabelValues(result).Inc()
	hydrationDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "catalog":
		if len(parts) > 1 {
			return "/catalog/:agent"
		}
		return "/catalog"
	case "accounts":
		if len(parts) == 1 {
			return "/accounts"
		}
		if len(parts) == 2 {
			return "/accounts/:account"
		}
		return "/accounts/:account/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
