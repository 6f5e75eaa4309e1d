package schedule

import (
	"database/sql"
	"testing"
	"time"

	"mnsched/internal/store"
)

func intervalJob(sec int64, lastRun *time.Time) *store.Job {
	j := &store.Job{
		ID:              1,
		ScheduleType:    store.ScheduleInterval,
		IntervalSeconds: sql.NullInt64{Int64: sec, Valid: true},
	}
	if lastRun != nil {
		j.LastRunUTC = store.UTC(*lastRun)
	}
	return j
}

func TestNextIntervalFirstRun(t *testing.T) {
	t.Parallel()
	c := NewCalculator("America/Denver")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	next, ok, err := c.Next(intervalJob(60, nil), now)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if want := now.Add(60 * time.Second); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextIntervalFromLastRun(t *testing.T) {
	t.Parallel()
	c := NewCalculator("America/Denver")
	last := time.Date(2025, 3, 1, 11, 58, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	j := intervalJob(60, &last)

	want := last.Add(60 * time.Second)
	for i := 0; i < 3; i++ {
		// Idempotent: repeated calls with the same inputs never drift
		// toward "now", and there is no fast-forward through missed
		// intervals after downtime.
		next, ok, err := c.Next(j, now)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if !next.Equal(want) {
			t.Fatalf("next = %v, want last_run+60s = %v", next, want)
		}
	}
}

func TestNextOnce(t *testing.T) {
	t.Parallel()
	c := NewCalculator("America/Denver")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	future := now.Add(2 * time.Hour)
	j := &store.Job{ID: 2, ScheduleType: store.ScheduleOnce, OnceAtUTC: store.UTC(future)}
	next, ok, err := c.Next(j, now)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !next.Equal(future) {
		t.Fatalf("future once: next = %v, want %v", next, future)
	}

	past := now.Add(-2 * time.Hour)
	j = &store.Job{ID: 3, ScheduleType: store.ScheduleOnce, OnceAtUTC: store.UTC(past)}
	next, ok, err = c.Next(j, now)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !next.Equal(now) {
		t.Fatalf("past once: next = %v, want now %v", next, now)
	}
}

func TestNextCronDenverMorning(t *testing.T) {
	t.Parallel()
	c := NewCalculator("America/Denver")
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Fatal(err)
	}

	// 9:05am Denver: today's 9:00 already passed, so the next match is
	// 9:00am Denver tomorrow.
	now := time.Date(2025, 6, 10, 9, 5, 0, 0, denver)
	j := &store.Job{
		ID:           4,
		ScheduleType: store.ScheduleCron,
		CronExpr:     sql.NullString{String: "0 9 * * *", Valid: true},
		Timezone:     "America/Denver",
	}
	next, ok, err := c.Next(j, now.UTC())
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	want := time.Date(2025, 6, 11, 9, 0, 0, 0, denver)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v (9:00 Denver next day)", next.In(denver), want)
	}
	if next.Location() != time.UTC {
		t.Fatalf("next should be returned in UTC, got %v", next.Location())
	}
}

func TestNextCronFiveFields(t *testing.T) {
	t.Parallel()
	c := NewCalculator("UTC")
	now := time.Date(2025, 6, 10, 9, 2, 30, 0, time.UTC)
	j := &store.Job{
		ID:           5,
		ScheduleType: store.ScheduleCron,
		CronExpr:     sql.NullString{String: "*/5 * * * *", Valid: true},
		Timezone:     "UTC",
	}
	next, ok, err := c.Next(j, now)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if want := time.Date(2025, 6, 10, 9, 5, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextMalformedRows(t *testing.T) {
	t.Parallel()
	c := NewCalculator("America/Denver")
	now := time.Now().UTC()

	tests := []struct {
		name string
		job  *store.Job
	}{
		{name: "cron without expr", job: &store.Job{ID: 6, ScheduleType: store.ScheduleCron}},
		{name: "bad cron expr", job: &store.Job{ID: 7, ScheduleType: store.ScheduleCron, CronExpr: sql.NullString{String: "not cron", Valid: true}}},
		{name: "interval without seconds", job: &store.Job{ID: 8, ScheduleType: store.ScheduleInterval}},
		{name: "once without timestamp", job: &store.Job{ID: 9, ScheduleType: store.ScheduleOnce}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, ok, err := c.Next(tt.job, now); ok || err == nil {
				t.Fatalf("ok=%v err=%v, want inert with error", ok, err)
			}
		})
	}
}

func TestNextUnknownTimezoneFallsBack(t *testing.T) {
	t.Parallel()
	c := NewCalculator("UTC")
	now := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)
	j := &store.Job{
		ID:           10,
		ScheduleType: store.ScheduleCron,
		CronExpr:     sql.NullString{String: "0 9 * * *", Valid: true},
		Timezone:     "Nowhere/Nope",
	}
	next, ok, err := c.Next(j, now)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if want := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("next = %v, want %v (UTC fallback)", next, want)
	}
}
