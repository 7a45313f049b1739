package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue and scheduler instrumentation. Registered on the default registry
// and exposed through /metrics.
var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlegate_jobs_processed_total",
		Help: "Jobs completed successfully, per queue.",
	}, []string{"queue"})

	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlegate_jobs_failed_total",
		Help: "Job attempts that returned an error, per queue.",
	}, []string{"queue"})

	JobsDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlegate_jobs_dead_total",
		Help: "Jobs parked on the dead list after exhausting retries, per queue.",
	}, []string{"queue"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settlegate_queue_depth",
		Help: "Current number of jobs per queue and state.",
	}, []string{"queue", "state"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlegate_sweep_runs_total",
		Help: "Periodic trigger executions, per trigger and outcome.",
	}, []string{"trigger", "outcome"})
)
