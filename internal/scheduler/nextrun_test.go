package scheduler

import (
	"testing"
	"time"

	"lexflow/internal/store"
)

func TestNextRunFrequencies(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		freq store.Frequency
		want time.Time
	}{
		{"hourly", store.FreqHourly, now.Add(time.Hour)},
		{"daily", store.FreqDaily, now.Add(24 * time.Hour)},
		{"weekly", store.FreqWeekly, now.Add(7 * 24 * time.Hour)},
		{"monthly is a flat 30 days", store.FreqMonthly, now.Add(30 * 24 * time.Hour)},
		{"unknown falls back to hourly", store.Frequency("fortnightly"), now.Add(time.Hour)},
		{"empty falls back to hourly", store.Frequency(""), now.Add(time.Hour)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRun(store.ScheduledJob{Frequency: tc.freq}, now)
			if !got.Equal(tc.want) {
				t.Fatalf("NextRun = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextRunCron(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	job := store.ScheduledJob{
		Frequency:      store.FreqDaily,
		CronExpression: "0 9 * * *",
	}
	got := NextRun(job, now)
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunCronBeatsFrequency(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	job := store.ScheduledJob{
		Frequency:      store.FreqMonthly,
		CronExpression: "*/15 * * * *",
	}
	got := NextRun(job, now)
	if want := now.Add(15 * time.Minute); !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunCronTimezone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 12:00 UTC is 08:00 in New York (EDT), so the next 9am fire is the
	// same day local time.
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	job := store.ScheduledJob{
		CronExpression: "0 9 * * *",
		Timezone:       "America/New_York",
	}
	got := NextRun(job, now)
	want := time.Date(2026, 6, 10, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunBadCronFallsBack(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	job := store.ScheduledJob{CronExpression: "not a cron"}
	if got := NextRun(job, now); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("NextRun = %v, want fallback +1h", got)
	}
}
