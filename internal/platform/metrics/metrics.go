package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certification_decisions_total",
			Help: "Review decisions submitted, by outcome.",
		},
		[]string{"decision"},
	)

	campaignsLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certification_campaigns_launched_total",
		Help: "Campaigns launched.",
	})

	violationsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sod_violations_detected_total",
		Help: "SOD violations recorded by detection runs.",
	})
)

func Init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, decisionsTotal, campaignsLaunched, violationsDetected)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

func RecordCampaignLaunch() {
	campaignsLaunched.Inc()
}

func RecordViolations(count int) {
	if count > 0 {
		violationsDetected.Add(float64(count))
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.code)
		httpRequestsTotal.WithLabelValues(r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, status).Observe(time.Since(start).Seconds())
	})
}
