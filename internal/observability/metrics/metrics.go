package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the checkout and
// payment core.
type Metrics struct {
	checkouts         *prometheus.CounterVec
	paymentEvents     *prometheus.CounterVec
	callbackRejected  *prometheus.CounterVec
	reconcileSweeps   prometheus.Counter
	reconcileOutcomes *prometheus.CounterVec
}

// New registers the domain instruments on the given registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shafran_checkouts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shafran_payment_events_total",
			Help: "Payment status transitions by provider and status.",
		}, []string{"provider", "status"}),
		callbackRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shafran_callback_rejected_total",
			Help: "Provider callbacks rejected before processing.",
		}, []string{"provider", "reason"}),
		reconcileSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shafran_reconcile_sweeps_total",
			Help: "Reconciliation sweep runs.",
		}),
		reconcileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shafran_reconcile_outcomes_total",
			Help: "Reconciled payments by resulting status.",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.checkouts, m.paymentEvents, m.callbackRejected,
		m.reconcileSweeps, m.reconcileOutcomes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) RecordCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(strings.TrimSpace(outcome)).Inc()
}

func (m *Metrics) RecordPaymentEvent(provider, status string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(strings.TrimSpace(provider), strings.TrimSpace(status)).Inc()
}

func (m *Metrics) RecordCallbackRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.callbackRejected.WithLabelValues(strings.TrimSpace(provider), strings.TrimSpace(reason)).Inc()
}

func (m *Metrics) RecordReconcileSweep() {
	if m == nil {
		return
	}
	m.reconcileSweeps.Inc()
}

func (m *Metrics) RecordReconcileOutcome(status string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(strings.TrimSpace(status)).Inc()
}

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP instruments on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	h := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shafran_http_requests_total",
			Help: "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shafran_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	for _, c := range []prometheus.Collector{h.requests, h.duration} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return h, nil
}

// GinMiddleware records request counts and latency.
func GinMiddleware(h *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		h.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		h.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
