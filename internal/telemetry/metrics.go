package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в глобальном реестре prometheus;
// отдаются через /metrics в команде serve.
var (
	// RunsTotal — количество завершённых запусков по статусу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_runs_total",
		Help: "Completed pipeline runs by terminal status.",
	}, []string{"status"})

	// RunDuration — длительность запусков.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conveyor_run_duration_seconds",
		Help:    "Pipeline run duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// StepsTotal — количество завершённых шагов по модулю и статусу.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_steps_total",
		Help: "Completed steps by module and terminal status.",
	}, []string{"module", "status"})

	// StepDuration — длительность шагов по модулю.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conveyor_step_duration_seconds",
		Help:    "Step duration by module.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"module"})

	// SchedulerTicks — количество тиков планировщика.
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_scheduler_ticks_total",
		Help: "Scheduler ticks executed.",
	})

	// SchedulerTriggers — количество запусков, созданных планировщиком.
	SchedulerTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_scheduler_triggers_total",
		Help: "Runs triggered by the scheduler.",
	})

	// SchedulerSkippedTicks — тики, пропущенные из-за ещё идущего
	// предыдущего тика.
	SchedulerSkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_scheduler_skipped_ticks_total",
		Help: "Scheduler ticks skipped because the previous tick was still running.",
	})
)
