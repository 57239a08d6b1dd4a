// Package metrics provides Prometheus metrics collection for scopedb.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/scopedb/ports"
)

// Collector holds all Prometheus metrics for scopedb.
type Collector struct {
	// Transaction metrics
	TransactionsTotal *prometheus.CounterVec
	TransactionsOpen  prometheus.Gauge
	HandleWait        prometheus.Histogram

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Scope metrics
	ScopeViolations *prometheus.CounterVec

	// Schema metrics
	SchemaRegistrations *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Tests use this with a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "transactions_total",
				Help:      "Total number of transactions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		TransactionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scopedb",
				Name:      "transactions_open",
				Help:      "Number of transactions currently open",
			},
		),
		HandleWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "scopedb",
				Name:      "handle_wait_seconds",
				Help:      "Time spent waiting for exclusive use of a database handle",
				Buckets:   []float64{.0001, .001, .01, .1, 1, 10},
			},
		),

		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "queries_total",
				Help:      "Total number of operations by kind and outcome",
			},
			[]string{"op", "outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scopedb",
				Name:      "query_duration_seconds",
				Help:      "Adapter execution time in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"op"},
		),

		ScopeViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "scope_violations_total",
				Help:      "Total number of rejected scope violations by reason",
			},
			[]string{"reason"},
		),

		SchemaRegistrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "schema_registrations_total",
				Help:      "Total number of schema registrations by outcome",
			},
			[]string{"outcome"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scopedb",
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
	}
}

// RecordQuery records one adapter call. A nil collector records nothing.
func (c *Collector) RecordQuery(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.QueriesTotal.WithLabelValues(op, outcome).Inc()
	c.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// TransactionOpened records a transaction entering Open.
func (c *Collector) TransactionOpened() {
	if c == nil {
		return
	}
	c.TransactionsOpen.Inc()
}

// TransactionClosed records a transaction reaching Closed.
func (c *Collector) TransactionClosed(mode, outcome string) {
	if c == nil {
		return
	}
	c.TransactionsOpen.Dec()
	c.TransactionsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveHandleWait records how long Open waited for its handle.
func (c *Collector) ObserveHandleWait(d time.Duration) {
	if c == nil {
		return
	}
	c.HandleWait.Observe(d.Seconds())
}

// ScopeViolation records a rejected scope violation.
func (c *Collector) ScopeViolation(reason string) {
	if c == nil {
		return
	}
	c.ScopeViolations.WithLabelValues(reason).Inc()
}

// SchemaRegistered records a schema registration attempt.
func (c *Collector) SchemaRegistered(err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.SchemaRegistrations.WithLabelValues(outcome).Inc()
}

// Ensure interface compliance.
var _ ports.Metrics = (*Collector)(nil)
