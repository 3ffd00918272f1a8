package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the Prometheus series the scheduler exposes, mirroring the
// processor throughput metrics the rest of the corpus registers via
// promauto — registered on the Registerer handed to New, so tests that pass
// a fresh registry per Scheduler never collide on the default global
// registry (which New falls back to when given nil).
type metrics struct {
	tasksDispatched prometheus.Counter
	tasksApproved   prometheus.Counter
	tasksRejected   prometheus.Counter
	runningGauge    prometheus.Gauge
	lockContention  prometheus.Counter
	syncConflicts   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		tasksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_scheduler_tasks_dispatched_total",
			Help: "Total number of tasks dispatched to a worker.",
		}),
		tasksApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_scheduler_tasks_approved_total",
			Help: "Total number of tasks approved by review.",
		}),
		tasksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_scheduler_tasks_rejected_total",
			Help: "Total number of tasks rejected (retry budget exhausted or reviewer failed verdict).",
		}),
		runningGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_scheduler_running_tasks",
			Help: "Number of tasks currently dispatched to a worker.",
		}),
		lockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_scheduler_lock_contention_total",
			Help: "Total number of failed sync-back entries (lock denied by a live peer, or an I/O failure).",
		}),
		syncConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "conductor_scheduler_sync_conflicts_total",
			Help: "Total number of sync-back conflicts detected (target file changed outside the sandbox).",
		}),
	}
}
