// Package metrics — Prometheus-метрики движка.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksProcessed — обработанные доставки по исходу
	// (advance, complete, retry, fail, stale).
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_tasks_processed_total",
		Help: "Task deliveries processed by the coordinator, by outcome",
	}, []string{"outcome"})

	// InvocationDuration — длительность вызовов узлов по виду action.
	InvocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loom_invocation_duration_seconds",
		Help:    "Node invocation duration by action kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// RunsFinished — завершённые прохождения по статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_runs_finished_total",
		Help: "Document runs reaching a terminal status",
	}, []string{"status"})

	// DocumentsIngested — принятые документы.
	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_documents_ingested_total",
		Help: "Documents accepted for processing",
	})

	// RevisionConflicts — проигранные CAS-записи состояния.
	RevisionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_revision_conflicts_total",
		Help: "Run state writes lost to a concurrent writer",
	})
)

// ObserveInvocation фиксирует длительность вызова узла.
func ObserveInvocation(action string, elapsed time.Duration) {
	InvocationDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}
