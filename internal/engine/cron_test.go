package engine

import (
	"testing"
	"time"
)

// at строит момент времени для проверки cron-выражений.
func at(month time.Month, day, hour, minute int) time.Time {
	// 2026-03-02 — понедельник.
	return time.Date(2026, month, day, hour, minute, 0, 0, time.UTC)
}

func TestIsDue(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		now      time.Time
		expected bool
	}{
		{
			name:     "wildcard matches any minute",
			expr:     "* * * * *",
			now:      at(time.March, 2, 10, 37),
			expected: true,
		},
		{
			name:     "exact minute and hour",
			expr:     "30 9 * * *",
			now:      at(time.March, 2, 9, 30),
			expected: true,
		},
		{
			name:     "exact minute wrong hour",
			expr:     "30 9 * * *",
			now:      at(time.March, 2, 10, 30),
			expected: false,
		},
		{
			name:     "step from zero",
			expr:     "*/5 * * * *",
			now:      at(time.March, 2, 10, 35),
			expected: true,
		},
		{
			name:     "step from zero off-grid",
			expr:     "*/5 * * * *",
			now:      at(time.March, 2, 10, 37),
			expected: false,
		},
		{
			name:     "step with explicit base",
			expr:     "3/10 * * * *",
			now:      at(time.March, 2, 10, 23),
			expected: true,
		},
		{
			name:     "step with explicit base off-grid",
			expr:     "3/10 * * * *",
			now:      at(time.March, 2, 10, 25),
			expected: false,
		},
		{
			name:     "range inside",
			expr:     "0 9-17 * * *",
			now:      at(time.March, 2, 13, 0),
			expected: true,
		},
		{
			name:     "range outside",
			expr:     "0 9-17 * * *",
			now:      at(time.March, 2, 19, 0),
			expected: false,
		},
		{
			name:     "list matches",
			expr:     "0,15,30,45 * * * *",
			now:      at(time.March, 2, 10, 45),
			expected: true,
		},
		{
			name:     "list misses",
			expr:     "0,15,30,45 * * * *",
			now:      at(time.March, 2, 10, 20),
			expected: false,
		},
		{
			name:     "weekday monday",
			expr:     "0 9 * * 1",
			now:      at(time.March, 2, 9, 0),
			expected: true,
		},
		{
			name:     "weekday sunday mismatch",
			expr:     "0 9 * * 0",
			now:      at(time.March, 2, 9, 0),
			expected: false,
		},
		{
			name:     "day of month",
			expr:     "0 0 15 * *",
			now:      at(time.March, 15, 0, 0),
			expected: true,
		},
		{
			name:     "month field",
			expr:     "0 0 * 4 *",
			now:      at(time.March, 2, 0, 0),
			expected: false,
		},
		// Сломанные выражения дают false, не панику.
		{
			name:     "too few fields",
			expr:     "* * *",
			now:      at(time.March, 2, 10, 0),
			expected: false,
		},
		{
			name:     "too many fields",
			expr:     "* * * * * *",
			now:      at(time.March, 2, 10, 0),
			expected: false,
		},
		{
			name:     "garbage token",
			expr:     "foo * * * *",
			now:      at(time.March, 2, 10, 0),
			expected: false,
		},
		{
			name:     "garbage in list",
			expr:     "1,x * * * *",
			now:      at(time.March, 2, 10, 1),
			expected: false,
		},
		{
			name:     "zero step",
			expr:     "*/0 * * * *",
			now:      at(time.March, 2, 10, 0),
			expected: false,
		},
		{
			name:     "empty expression",
			expr:     "",
			now:      at(time.March, 2, 10, 0),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(tt.expr, tt.now); got != tt.expected {
				t.Errorf("IsDue(%q, %v) = %v, expected %v", tt.expr, tt.now, got, tt.expected)
			}
		})
	}
}

func TestSameMinuteSlot(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 30, 5, 0, time.UTC)

	tests := []struct {
		name     string
		a, b     time.Time
		expected bool
	}{
		{
			name:     "same minute different seconds",
			a:        base,
			b:        base.Add(40 * time.Second),
			expected: true,
		},
		{
			name:     "adjacent minutes within 60s",
			a:        base,
			b:        base.Add(56 * time.Second),
			expected: false,
		},
		{
			name:     "identical",
			a:        base,
			b:        base,
			expected: true,
		},
		{
			name:     "different hours",
			a:        base,
			b:        base.Add(time.Hour),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameMinuteSlot(tt.a, tt.b); got != tt.expected {
				t.Errorf("SameMinuteSlot(%v, %v) = %v, expected %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}
