package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicsync",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Rows processed by imports broken down by record kind and outcome.",
	}, []string{"kind", "outcome"})

	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicsync",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Import and rollback runs broken down by action and final status.",
	}, []string{"action", "status"})

	importBatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicsync",
		Subsystem: "import",
		Name:      "batch_failures_total",
		Help:      "Failed write batches broken down by record kind and phase.",
	}, []string{"kind", "phase"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clinicsync",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of import runs.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})
)

func observeReport(report *Report) {
	kind := report.Kind.String()
	stats := report.Stats
	importRows.WithLabelValues(kind, "new").Add(float64(stats.New))
	importRows.WithLabelValues(kind, "updated").Add(float64(stats.Updated))
	importRows.WithLabelValues(kind, "skipped").Add(float64(stats.Skipped))
	importRows.WithLabelValues(kind, "duplicate").Add(float64(stats.Duplicates))
	importRows.WithLabelValues(kind, "error").Add(float64(stats.Errors))
	importRows.WithLabelValues(kind, "not_attempted").Add(float64(stats.NotAttempted))
	for _, failure := range stats.Failures {
		importBatchFailures.WithLabelValues(kind, string(failure.Phase)).Inc()
	}
	importRuns.WithLabelValues(ActionImport, report.Status).Inc()
	importDuration.WithLabelValues(kind).Observe(report.Duration.Seconds())
}
