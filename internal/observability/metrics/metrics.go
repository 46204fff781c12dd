// Package metrics exposes Prometheus instruments for the bookkeeping engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookkeeping"

type Metrics struct {
	registry prometheus.Gatherer

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	statusTransitions *prometheus.CounterVec
	bulkSize          prometheus.Histogram
	settlements       *prometheus.CounterVec
	settledAmount     prometheus.Counter
	reimbursements    *prometheus.CounterVec
	fraudScores       prometheus.Histogram
	fraudScorerErrors prometheus.Counter
	accountsImported  prometheus.Counter
	reportCache       *prometheus.CounterVec
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Applied workflow and approval status transitions.",
		}, []string{"type", "axis", "from", "to"}),
		bulkSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_bulk_size",
			Help:      "Number of transactions per bulk status change.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_operations_total",
			Help:      "Settlement operations by action and result.",
		}, []string{"action", "result"}),
		settledAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_settled_amount_total",
			Help:      "Sum of settled payment amounts in THB.",
		}),
		reimbursements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reimbursement_transitions_total",
			Help:      "Reimbursement status transitions.",
		}, []string{"to"}),
		fraudScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reimbursement_fraud_score",
			Help:      "Distribution of fraud scores at submission.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		fraudScorerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reimbursement_fraud_scorer_errors_total",
			Help:      "External fraud scorer calls that failed.",
		}),
		accountsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_imported_total",
			Help:      "Chart-of-accounts rows upserted by imports.",
		}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_requests_total",
			Help:      "Settlement report cache lookups by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.statusTransitions, m.bulkSize,
		m.settlements, m.settledAmount, m.reimbursements, m.fraudScores,
		m.fraudScorerErrors, m.accountsImported, m.reportCache,
	)
	return m
}

// Nop returns instruments bound to a private registry, for callers that do not expose /metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StatusTransition(txnType, axis, from, to string, n int) {
	m.statusTransitions.WithLabelValues(txnType, axis, from, to).Add(float64(n))
}

func (m *Metrics) BulkSize(n int) {
	m.bulkSize.Observe(float64(n))
}

func (m *Metrics) Settlement(action, result string, n int) {
	m.settlements.WithLabelValues(action, result).Add(float64(n))
}

func (m *Metrics) SettledAmount(thb float64) {
	m.settledAmount.Add(thb)
}

func (m *Metrics) Reimbursement(to string) {
	m.reimbursements.WithLabelValues(to).Inc()
}

func (m *Metrics) FraudScore(score int) {
	m.fraudScores.Observe(float64(score))
}

func (m *Metrics) FraudScorerError() {
	m.fraudScorerErrors.Inc()
}

func (m *Metrics) AccountsImported(n int) {
	m.accountsImported.Add(float64(n))
}

func (m *Metrics) ReportCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
