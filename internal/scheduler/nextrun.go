package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"lexflow/internal/store"
)

// cronParser accepts standard five-field expressions plus descriptors
// such as @daily.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NextRun computes when a job should fire again after running at now.
// A cron expression, when present, wins over the coarse frequency. An
// expression that does not parse falls back to one hour so a mistyped
// job degrades to hourly instead of going dormant.
func NextRun(job store.ScheduledJob, now time.Time) time.Time {
	if job.CronExpression != "" {
		if next, ok := nextCron(job.CronExpression, job.Timezone, now); ok {
			return next
		}
	}

	switch job.Frequency {
	case store.FreqHourly:
		return now.Add(time.Hour)
	case store.FreqDaily:
		return now.Add(24 * time.Hour)
	case store.FreqWeekly:
		return now.Add(7 * 24 * time.Hour)
	case store.FreqMonthly:
		// Flat 30 days. Calendar-aware monthly runs use a cron expression.
		return now.Add(30 * 24 * time.Hour)
	default:
		return now.Add(time.Hour)
	}
}

func nextCron(expr, tz string, now time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			now = now.In(loc)
		}
	}
	return sched.Next(now), true
}
