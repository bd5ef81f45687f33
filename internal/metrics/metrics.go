// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors registered for the process.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge

	dealsMarked      prometheus.Counter
	dealsCompleted   prometheus.Counter
	productsCreated  prometheus.Counter
	productsDeleted  prometheus.Counter
	otpSent          prometheus.Counter
	otpVerifyFailed  prometheus.Counter
	realtimeEvents   *prometheus.CounterVec
	backendErrors    *prometheus.CounterVec
	countCacheFetch  *prometheus.CounterVec
	sessionEvents    *prometheus.CounterVec
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unimart_http_requests_total",
			Help: "HTTP requests by service, method, path and status.",
		}, []string{"service", "method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unimart_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unimart_http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		dealsMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_deals_marked_total",
			Help: "Deal notifications created by buyers.",
		}),
		dealsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_deals_completed_total",
			Help: "Deals confirmed by both parties.",
		}),
		productsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_products_created_total",
			Help: "Products listed.",
		}),
		productsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_products_deleted_total",
			Help: "Products removed by their owner.",
		}),
		otpSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_otp_sent_total",
			Help: "OTP codes dispatched.",
		}),
		otpVerifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unimart_otp_verify_failed_total",
			Help: "OTP verification rejections.",
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unimart_realtime_events_total",
			Help: "Realtime change events by table and type.",
		}, []string{"table", "type"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unimart_backend_errors_total",
			Help: "Backend call failures by error code.",
		}, []string{"code"}),
		countCacheFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unimart_count_cache_fetch_total",
			Help: "Count guard outcomes (hit, throttled, fetch, error).",
		}, []string{"outcome"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unimart_session_events_total",
			Help: "Session lifecycle events (signed_in, signed_out, token_refreshed).",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal, m.httpRequestDuration, m.httpInFlight,
		m.dealsMarked, m.dealsCompleted,
		m.productsCreated, m.productsDeleted,
		m.otpSent, m.otpVerifyFailed,
		m.realtimeEvents, m.backendErrors, m.countCacheFetch,
		m.sessionEvents,
	)
	return m
}

// RecordHTTPRequest records a completed request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// IncrementInFlight marks a request in flight.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request done.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

func (m *Metrics) RecordDealMarked()     { m.dealsMarked.Inc() }
func (m *Metrics) RecordDealCompleted()  { m.dealsCompleted.Inc() }
func (m *Metrics) RecordProductCreated() { m.productsCreated.Inc() }
func (m *Metrics) RecordProductDeleted() { m.productsDeleted.Inc() }
func (m *Metrics) RecordOTPSent()        { m.otpSent.Inc() }
func (m *Metrics) RecordOTPVerifyFailed() { m.otpVerifyFailed.Inc() }

// RecordRealtimeEvent counts a change feed event.
func (m *Metrics) RecordRealtimeEvent(table, eventType string) {
	m.realtimeEvents.WithLabelValues(table, eventType).Inc()
}

// RecordBackendError counts a translated backend failure.
func (m *Metrics) RecordBackendError(code string) {
	m.backendErrors.WithLabelValues(code).Inc()
}

// RecordCountCacheOutcome counts count guard read outcomes.
func (m *Metrics) RecordCountCacheOutcome(outcome string) {
	m.countCacheFetch.WithLabelValues(outcome).Inc()
}

// RecordSessionEvent counts a session lifecycle event.
func (m *Metrics) RecordSessionEvent(eventType string) {
	m.sessionEvents.WithLabelValues(eventType).Inc()
}
