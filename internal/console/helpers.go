package console

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"mnsched/internal/store"
	"mnsched/pkg/logx"
)

func consoleLogger() logx.Logger {
	// schedctl output is the tables themselves; structured logs stay off
	// unless debugging.
	if os.Getenv("SCHEDCTL_DEBUG") != "" {
		return logx.NewConsole("DEBUG")
	}
	return logx.Nop()
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func yn(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// scheduleSummary renders the schedule column for job listings.
func scheduleSummary(j *store.Job) string {
	switch j.ScheduleType {
	case store.ScheduleCron:
		return "cron " + j.CronExpr.String
	case store.ScheduleInterval:
		return fmt.Sprintf("every %ds", j.IntervalSeconds.Int64)
	case store.ScheduleOnce:
		return "once " + j.OnceAtUTC.String()
	}
	return j.ScheduleType
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// parseLocalOnce converts a local "YYYY-MM-DD HH:MM" in tz to UTC,
// matching how once jobs have always been entered.
func parseLocalOnce(value, tz string) (time.Time, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(value), loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q (want YYYY-MM-DD HH:MM)", value)
}
