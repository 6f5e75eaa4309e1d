// Package schedule computes when a job runs next. All functions are pure
// over their inputs; the dispatcher owns the clock and the store.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"mnsched/internal/store"
)

type Calculator struct {
	parser    cron.Parser
	defaultTZ string
}

// NewCalculator builds a calculator using the standard 5-field crontab
// grammar (minute hour dom month dow; *, ranges, steps, lists) plus
// @-descriptors. defaultTZ applies to cron jobs whose row has no timezone.
func NewCalculator(defaultTZ string) *Calculator {
	return &Calculator{
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defaultTZ: defaultTZ,
	}
}

// Next returns the job's next run in UTC, strictly after now for cron
// jobs, per the rules:
//
//   - cron: evaluate the expression in the job's local timezone, convert
//     the next matching instant back to UTC.
//   - interval: last_run_utc + interval when a last run exists, else
//     now + interval. No catch-up: after downtime the single next value
//     may still be in the past, firing exactly one run.
//   - once: once_at_utc if still in the future, else now (due on the
//     next tick). The dispatcher stores NULL after a once job executes;
//     Next is not consulted for that terminal transition.
//
// ok=false with a nil error means the schedule is terminal; a non-nil
// error means the row is malformed (empty cron expression, bad interval)
// and will stay inert until edited.
func (c *Calculator) Next(j *store.Job, now time.Time) (next time.Time, ok bool, err error) {
	now = now.UTC()
	switch j.ScheduleType {
	case store.ScheduleCron:
		expr := strings.TrimSpace(j.CronExpr.String)
		if expr == "" {
			return time.Time{}, false, fmt.Errorf("job %d: cron job has no cron_expr", j.ID)
		}
		sched, perr := c.parser.Parse(expr)
		if perr != nil {
			return time.Time{}, false, fmt.Errorf("job %d: bad cron_expr %q: %w", j.ID, expr, perr)
		}
		local := sched.Next(now.In(c.location(j.Timezone)))
		if local.IsZero() {
			return time.Time{}, false, nil
		}
		return local.UTC(), true, nil

	case store.ScheduleInterval:
		if !j.IntervalSeconds.Valid || j.IntervalSeconds.Int64 <= 0 {
			return time.Time{}, false, fmt.Errorf("job %d: interval job has no positive interval_seconds", j.ID)
		}
		base := now
		if j.LastRunUTC.Valid {
			base = j.LastRunUTC.Time
		}
		return base.Add(time.Duration(j.IntervalSeconds.Int64) * time.Second), true, nil

	case store.ScheduleOnce:
		if !j.OnceAtUTC.Valid {
			return time.Time{}, false, fmt.Errorf("job %d: once job has no once_at_utc", j.ID)
		}
		if j.OnceAtUTC.Time.After(now) {
			return j.OnceAtUTC.Time, true, nil
		}
		return now, true, nil
	}
	return time.Time{}, false, fmt.Errorf("job %d: unknown schedule_type %q", j.ID, j.ScheduleType)
}

func (c *Calculator) location(tz string) *time.Location {
	for _, name := range []string{strings.TrimSpace(tz), c.defaultTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
