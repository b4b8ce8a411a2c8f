package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

const namespace = "becas_synth"

// Metrics holds the run counters on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	Tables         *prometheus.CounterVec
	RowsSkipped    *prometheus.CounterVec
	Canonical      prometheus.Counter
	Expanded       prometheus.Counter
	Reconciliation prometheus.Counter
	RunDuration    prometheus.Histogram
	LastRunSuccess prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_total",
			Help:      "Tables extracted from source documents, by assigned category.",
		}, []string{"category"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Table rows that did not become canonical records, by reason.",
		}, []string{"reason"}),
		Canonical: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "canonical_records_total",
			Help:      "Canonical aggregate records produced.",
		}),
		Expanded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expanded_records_total",
			Help:      "Representative rows emitted.",
		}),
		Reconciliation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_warnings_total",
			Help:      "Groups whose rows did not reconcile with their aggregate.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a synthesis run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	m.registry.MustRegister(
		m.Tables,
		m.RowsSkipped,
		m.Canonical,
		m.Expanded,
		m.Reconciliation,
		m.RunDuration,
		m.LastRunSuccess,
	)
	return m
}

// Registry exposes the registry for scraping or pushing.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observe records a finished run.
func (m *Metrics) observe(audit *dataset.Audit, elapsed time.Duration) {
	for cat, n := range audit.TablesByCategory {
		m.Tables.WithLabelValues(string(cat)).Add(float64(n))
	}
	for _, reason := range audit.SkipReasons() {
		m.RowsSkipped.WithLabelValues(string(reason)).Add(float64(audit.RowsSkipped[reason]))
	}
	m.Canonical.Add(float64(audit.Records))
	m.Expanded.Add(float64(audit.ExpandedRows))
	for _, w := range audit.Warnings {
		if w.Kind == dataset.WarningReconciliation {
			m.Reconciliation.Inc()
		}
	}
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunSuccess.SetToCurrentTime()
}
