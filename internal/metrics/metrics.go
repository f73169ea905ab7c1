package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_dispatches_total",
			Help: "Total dispatch calls by event type",
		},
		[]string{"event_type"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_deliveries_total",
			Help: "Channel delivery attempts by channel and result",
		},
		[]string{"channel", "status"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_dispatch_duration_seconds",
			Help:    "Time to fan one event out to all recipients and channels",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"event_type"},
	)

	webhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_webhook_updates_total",
			Help: "Inbound chat webhook updates by classified kind",
		},
		[]string{"kind"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_verifications_total",
			Help: "Chat link verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	duplicateEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_duplicate_events_total",
			Help: "Dispatch calls suppressed by event id dedup",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_rate_limit_rejections_total",
			Help: "Webhook code submissions rejected by rate limiter",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch records one dispatch call and its duration.
func RecordDispatch(eventType string, duration time.Duration) {
	dispatchesTotal.WithLabelValues(eventType).Inc()
	dispatchDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordDelivery records one channel delivery attempt.
func RecordDelivery(channel, status string) {
	deliveriesTotal.WithLabelValues(channel, status).Inc()
}

// RecordWebhookUpdate records an inbound webhook update by kind
// (command, code, fallback, malformed).
func RecordWebhookUpdate(kind string) {
	webhookUpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordVerification records a code verification outcome (linked, rejected).
func RecordVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordDuplicateEvent records a dispatch suppressed by dedup.
func RecordDuplicateEvent() {
	duplicateEventsTotal.Inc()
}

// RecordRateLimitRejection records a throttled webhook code submission.
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
