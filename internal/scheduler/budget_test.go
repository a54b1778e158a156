package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeCostSource — подменный источник дневной стоимости.
type fakeCostSource struct {
	spent float64
	err   error
}

func (f *fakeCostSource) DailyCompletedCost(_ context.Context, _ time.Time) (float64, error) {
	return f.spent, f.err
}

func TestBudgetGuard_Allow(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		maxCostPerRun  float64
		maxRunsPerHour int
		spent          float64
		err            error
		expected       bool
	}{
		{
			name:           "under cap",
			maxCostPerRun:  10,
			maxRunsPerHour: 10,
			spent:          99.99,
			expected:       true,
		},
		{
			name:           "exactly at cap is refused",
			maxCostPerRun:  10,
			maxRunsPerHour: 10,
			spent:          100,
			expected:       false,
		},
		{
			name:           "over cap",
			maxCostPerRun:  10,
			maxRunsPerHour: 10,
			spent:          150,
			expected:       false,
		},
		{
			name:           "zero cap disables the guard",
			maxCostPerRun:  0,
			maxRunsPerHour: 10,
			spent:          1000,
			expected:       true,
		},
		{
			name:           "ledger unavailable fails open",
			maxCostPerRun:  10,
			maxRunsPerHour: 10,
			err:            errors.New("db down"),
			expected:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewBudgetGuard(BudgetConfig{
				Costs:          &fakeCostSource{spent: tt.spent, err: tt.err},
				MaxCostPerRun:  tt.maxCostPerRun,
				MaxRunsPerHour: tt.maxRunsPerHour,
			})

			if got := guard.Allow(context.Background(), now); got != tt.expected {
				t.Errorf("Allow() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestBudgetGuard_DailyCap(t *testing.T) {
	guard := NewBudgetGuard(BudgetConfig{
		Costs:          &fakeCostSource{},
		MaxCostPerRun:  2.5,
		MaxRunsPerHour: 4,
	})

	if guard.DailyCap() != 10 {
		t.Errorf("expected cap 10, got %v", guard.DailyCap())
	}
}
