// Package metrics exposes the application's Prometheus collectors.
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
			Namespace: "turntable",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turntable",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "turntable",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	aiGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turntable",
			Subsystem: "ai",
			Name:      "generations_total",
			Help:      "Total number of AI generation calls.",
		},
		[]string{"kind", "status"},
	)

	aiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "turntable",
			Subsystem: "ai",
			Name:      "generation_duration_seconds",
			Help:      "Duration of AI generation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"kind"},
	)

	pollSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turntable",
			Subsystem: "poller",
			Name:      "sweeps_total",
			Help:      "Total number of review poll sweeps.",
		},
		[]string{"status"},
	)

	pollSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "turntable",
			Subsystem: "poller",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of review poll sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	reviewsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "turntable",
			Subsystem: "poller",
			Name:      "reviews_saved_total",
			Help:      "Total number of provider reviews persisted by sweeps.",
		},
	)

	alertEmails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "turntable",
			Subsystem: "email",
			Name:      "alerts_sent_total",
			Help:      "Total number of alert emails sent.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		aiGenerations,
		aiDuration,
		pollSweeps,
		pollSweepDuration,
		reviewsSaved,
		alertEmails,
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

// RecordGeneration records one AI generation call.
func RecordGeneration(kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	aiGenerations.WithLabelValues(kind, status).Inc()
	aiDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSweep records one review poll sweep.
func RecordSweep(duration time.Duration, saved int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	pollSweeps.WithLabelValues(status).Inc()
	pollSweepDuration.Observe(duration.Seconds())
	if saved > 0 {
		reviewsSaved.Add(float64(saved))
	}
}

// RecordAlertEmail records one delivered alert email.
func RecordAlertEmail(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	alertEmails.WithLabelValues(kind).Inc()
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

// canonicalPath collapses request paths to a bounded label set.
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
	// API routes are static up to three segments (/api/google/poll); deeper
	// paths collapse into their parent.
	end := len(parts)
	if end > 3 {
		end = 3
	}
	return "/" + strings.Join(parts[:end], "/")
}
