package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedforge",
		Name:      "tasks_total",
		Help:      "Background tasks executed, by type and result.",
	}, []string{"type", "result"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "feedforge",
		Name:      "task_duration_seconds",
		Help:      "Background task execution time.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedforge",
		Name:      "refresh_total",
		Help:      "Source refreshes, by source type and result code.",
	}, []string{"source_type", "result"})

	ItemsAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedforge",
		Name:      "items_added_total",
		Help:      "Items inserted by refreshes and intake.",
	}, []string{"source_type"})

	IntakeJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedforge",
		Name:      "intake_jobs_total",
		Help:      "Finished intake jobs, by outcome.",
	}, []string{"result"})

	SemanticDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedforge",
		Name:      "semantic_decisions_total",
		Help:      "Novelty decisions written to the snapshot ledger.",
	}, []string{"decision"})
)

// Result labels a finished operation: "ok" or the error code.
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
