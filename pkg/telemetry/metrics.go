package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Hub ─────────────────────────────────────────────────────────────────────

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "tasks_enqueued_total",
		Help:      "Total tasks submitted, labelled by lane.",
	}, []string{"lane"})

	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "tasks_finished_total",
		Help:      "Total tasks that reached a terminal state, labelled by lane and status.",
	}, []string{"lane", "status"})

	LaneActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "lane_active",
		Help:      "Tasks currently executing in each lane.",
	}, []string{"lane"})

	LaneQueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "lane_queued",
		Help:      "Tasks waiting for admission in each lane.",
	}, []string{"lane"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "task_duration_seconds",
		Help:      "End-to-end task execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"lane"})

	ResultsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "hub",
		Name:      "results_reaped_total",
		Help:      "Total unconsumed task outcomes evicted by the reaper.",
	})

	// ─── Agent ───────────────────────────────────────────────────────────────────

	ForecastsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "agent",
		Name:      "forecasts_generated_total",
		Help:      "Total market forecasts produced by the agent executor.",
	})

	TradesDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "agent",
		Name:      "trades_decided_total",
		Help:      "Total trade decisions, labelled by verdict (placed or skipped).",
	}, []string{"verdict"})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	ScheduledJobsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradinghub",
		Subsystem: "scheduler",
		Name:      "jobs_fired_total",
		Help:      "Total cron jobs submitted to the hub, labelled by job name.",
	}, []string{"job"})
)
