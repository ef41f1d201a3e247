package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

type Metrics struct {
	UseCaseRequests  *prometheus.CounterVec
	UseCaseDuration  *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	Compensations    *prometheus.CounterVec
	Reconciliations  prometheus.Counter
	ReconcileBacklog prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UseCaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usecase_requests_total",
			Help:      "Total number of use case invocations.",
		}, []string{"use_case", "outcome"}),
		UseCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usecase_duration_seconds",
			Help:      "Duration of use case execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"use_case"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Compensating stock releases by outcome.",
		}, []string{"reason", "outcome"}),
		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reconciliation_required_total",
			Help:      "Stock releases that need manual reconciliation.",
		}),
		ReconcileBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_reconcile_backlog",
			Help:      "Releases queued for background retry.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.UseCaseRequests,
			m.UseCaseDuration,
			m.HTTPRequests,
			m.HTTPDuration,
			m.Compensations,
			m.Reconciliations,
			m.ReconcileBacklog,
		)
	}
	return m
}

func (m *Metrics) ObserveUseCase(useCase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UseCaseRequests.WithLabelValues(useCase, outcome).Inc()
	m.UseCaseDuration.WithLabelValues(useCase).Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Compensation(reason, outcome string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(reason, outcome).Inc()
}

func (m *Metrics) ReconciliationRequired() {
	if m == nil {
		return
	}
	m.Reconciliations.Inc()
}

func (m *Metrics) Backlog(delta float64) {
	if m == nil {
		return
	}
	m.ReconcileBacklog.Add(delta)
}
