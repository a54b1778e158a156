package repo

import (
	"testing"
	"time"
)

func TestDayBoundsUTC(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantStart time.Time
	}{
		{
			name:      "midnight exact",
			at:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "just before next midnight",
			at:        time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input converts first",
			// 01:30+05:00 — это ещё 1 марта по UTC.
			at:        time.Date(2026, 3, 2, 1, 30, 0, 0, time.FixedZone("UTC+5", 5*3600)),
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := dayBoundsUTC(tt.at)
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantStart.Add(24 * time.Hour)) {
				t.Errorf("end = %v, want %v", end, tt.wantStart.Add(24*time.Hour))
			}
			// Окно суток создания: run, созданный в 23:59 и завершившийся
			// после полуночи, попадает в бюджет дня создания.
			created := tt.wantStart.Add(23*time.Hour + 59*time.Minute)
			if created.Before(start) || !created.Before(end) {
				t.Errorf("created %v must fall within [%v, %v)", created, start, end)
			}
		})
	}
}
