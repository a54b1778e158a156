package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики сервера.
type Metrics struct {
	// RunsTotal — количество терминальных runs по статусу и триггеру.
	RunsTotal *prometheus.CounterVec

	// RunCostUSD — суммарная стоимость завершённых runs.
	RunCostUSD prometheus.Counter

	// TickDuration — длительность тика планировщика.
	TickDuration prometheus.Histogram

	// BudgetSkips — количество запусков, отклонённых бюджетом.
	BudgetSkips prometheus.Counter

	// StepsResumed — количество возобновлённых delay-шагов.
	StepsResumed prometheus.Counter
}

// NewMetrics создаёт и регистрирует метрики в указанном registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cadence",
			Name:      "runs_total",
			Help:      "Terminal worker runs by status and trigger.",
		}, []string{"status", "trigger"}),

		RunCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cadence",
			Name:      "run_cost_usd_total",
			Help:      "Accumulated cost of completed runs in USD.",
		}),

		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cadence",
			Name:      "scheduler_tick_seconds",
			Help:      "Duration of scheduler ticks.",
			Buckets:   prometheus.DefBuckets,
		}),

		BudgetSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cadence",
			Name:      "budget_skips_total",
			Help:      "Scheduled runs skipped by the daily budget guard.",
		}),

		StepsResumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cadence",
			Name:      "delayed_steps_resumed_total",
			Help:      "Waiting pipeline steps resumed by the sweeper.",
		}),
	}
}
