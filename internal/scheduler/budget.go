package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DailyCostSource — источник суммарной дневной стоимости.
type DailyCostSource interface {
	DailyCompletedCost(ctx context.Context, at time.Time) (float64, error)
}

// BudgetGuard ограничивает суммарную дневную стоимость scheduled runs.
//
// Дневной потолок выводится из пары (MaxCostPerRun, MaxRunsPerHour):
// cap = MaxCostPerRun × MaxRunsPerHour. Нулевой или отрицательный
// потолок отключает ограничение.
type BudgetGuard struct {
	costs    DailyCostSource
	dailyCap float64
	logger   *slog.Logger
}

// BudgetConfig — конфигурация BudgetGuard.
type BudgetConfig struct {
	Costs          DailyCostSource
	MaxCostPerRun  float64
	MaxRunsPerHour int
	Logger         *slog.Logger
}

// NewBudgetGuard создаёт BudgetGuard.
func NewBudgetGuard(cfg BudgetConfig) *BudgetGuard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetGuard{
		costs:    cfg.Costs,
		dailyCap: cfg.MaxCostPerRun * float64(cfg.MaxRunsPerHour),
		logger:   logger,
	}
}

// DailyCap возвращает действующий дневной потолок.
func (g *BudgetGuard) DailyCap() float64 {
	return g.dailyCap
}

// Allow возвращает true, если запуск укладывается в дневной бюджет.
//
// Бюджет fail-open: если журнал недоступен, запуск разрешается —
// пропущенный scheduled run дороже редкого превышения потолка.
// Потраченная сумма должна быть строго ниже потолка; ровно на потолке
// запуск уже запрещён.
func (g *BudgetGuard) Allow(ctx context.Context, now time.Time) bool {
	if g.dailyCap <= 0 {
		return true
	}

	spent, err := g.costs.DailyCompletedCost(ctx, now)
	if err != nil {
		g.logger.Warn("budget check unavailable, allowing run", "error", err)
		return true
	}

	if spent >= g.dailyCap {
		g.logger.Warn("daily budget reached, skipping run",
			"spent_usd", spent,
			"cap_usd", g.dailyCap,
		)
		return false
	}
	return true
}
