// Package metrics exposes Prometheus collectors for the MuseLink backend.
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
			Namespace: "muselink",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "muselink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "muselink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	unlockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "muselink",
			Subsystem: "unlocks",
			Name:      "attempts_total",
			Help:      "Total number of unlock attempts by outcome.",
		},
		[]string{"outcome"},
	)

	unlockDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "muselink",
			Subsystem: "unlocks",
			Name:      "duration_seconds",
			Help:      "Duration of unlock transactions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	creditsDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "muselink",
			Subsystem: "credits",
			Name:      "debited_total",
			Help:      "Total credits debited by successful unlocks.",
		},
	)

	creditsToppedUp = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "muselink",
			Subsystem: "credits",
			Name:      "topped_up_total",
			Help:      "Total credits added via payment top-ups.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		unlockAttempts,
		unlockDuration,
		creditsDebited,
		creditsToppedUp,
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

// RecordUnlockAttempt records the outcome and duration of one unlock call.
// A "granted" outcome also counts the debited credit.
func RecordUnlockAttempt(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	unlockAttempts.WithLabelValues(outcome).Inc()
	unlockDuration.Observe(duration.Seconds())
	if outcome == "granted" {
		creditsDebited.Inc()
	}
}

// RecordTopUp records credits added via a payment top-up.
func RecordTopUp(amount int64) {
	if amount > 0 {
		creditsToppedUp.Add(float64(amount))
	}
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
	case "artists":
		if len(parts) == 1 {
			return "/artists"
		}
		if len(parts) == 2 {
			return "/artists/:id"
		}
		return "/artists/:id/" + strings.Join(parts[2:], "/")
	case "requests":
		if len(parts) == 1 {
			return "/requests"
		}
		if len(parts) == 2 {
			return "/requests/:id"
		}
		return "/requests/:id/" + strings.Join(parts[2:], "/")
	default:
		return "/" + parts[0]
	}
}
