package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// Schedule types a job row may carry. Exactly one of cron_expr,
// interval_seconds, once_at_utc is meaningful depending on this.
const (
	ScheduleCron     = "cron"
	ScheduleInterval = "interval"
	ScheduleOnce     = "once"
)

// Run outcomes.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// UTCTime is a nullable UTC timestamp stored as RFC 3339 text.
//
// RFC 3339 in UTC sorts lexically, which the due-job query relies on
// (next_run_utc <= ? as a string comparison).
type UTCTime struct {
	Time  time.Time
	Valid bool
}

func UTC(t time.Time) UTCTime {
	return UTCTime{Time: t.UTC(), Valid: true}
}

func (t *UTCTime) Scan(v any) error {
	if v == nil {
		*t = UTCTime{}
		return nil
	}
	switch x := v.(type) {
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	case time.Time:
		*t = UTCTime{Time: x.UTC(), Valid: true}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into UTCTime", v)
	}
}

func (t *UTCTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = UTCTime{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (t UTCTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time.UTC().Format(time.RFC3339), nil
}

// String renders the timestamp for display; "-" when NULL.
func (t UTCTime) String() string {
	if !t.Valid {
		return "-"
	}
	return t.Time.UTC().Format(time.RFC3339)
}

// Job is one persisted task definition (a row in jobs).
//
// retries, retry_backoff_sec and max_runs are declared in the schema and
// settable from the console, but the dispatcher does not consume them.
type Job struct {
	ID              int64          `db:"id"`
	Name            string         `db:"name"`
	ProgramPath     string         `db:"program_path"`
	Args            string         `db:"args"`
	WorkingDir      sql.NullString `db:"working_dir"`
	VenvPath        sql.NullString `db:"venv_path"`
	EnvJSON         sql.NullString `db:"env_json"`
	ScheduleType    string         `db:"schedule_type"`
	CronExpr        sql.NullString `db:"cron_expr"`
	IntervalSeconds sql.NullInt64  `db:"interval_seconds"`
	OnceAtUTC       UTCTime        `db:"once_at_utc"`
	Timezone        string         `db:"timezone"`
	Enabled         bool           `db:"enabled"`
	NoOverlap       bool           `db:"no_overlap"`
	TimeoutSeconds  int64          `db:"timeout_seconds"`
	Retries         int64          `db:"retries"`
	RetryBackoffSec int64          `db:"retry_backoff_sec"`
	MaxRuns         sql.NullInt64  `db:"max_runs"`
	RunCount        int64          `db:"run_count"`
	NextRunUTC      UTCTime        `db:"next_run_utc"`
	LastRunUTC      UTCTime        `db:"last_run_utc"`
	Running         bool           `db:"running"`
	ClaimedBy       sql.NullString `db:"claimed_by"`
	LastExitCode    sql.NullInt64  `db:"last_exit_code"`
	StdoutPath      sql.NullString `db:"stdout_path"`
	StderrPath      sql.NullString `db:"stderr_path"`
	LogPath         sql.NullString `db:"log_path"`
	CreatedAtUTC    string         `db:"created_at_utc"`
	UpdatedAtUTC    string         `db:"updated_at_utc"`
}

// Timeout returns the configured subprocess timeout; zero means unbounded.
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// ValidateSchedule checks that the schedule spec matches the schedule type.
// Missing specs would otherwise leave a job silently inert (never given a
// next_run_utc), so reject them at creation/edit time.
func (j *Job) ValidateSchedule() error {
	switch j.ScheduleType {
	case ScheduleCron:
		if j.CronExpr.String == "" || !j.CronExpr.Valid {
			return errors.New("cron job requires cron_expr")
		}
	case ScheduleInterval:
		if !j.IntervalSeconds.Valid || j.IntervalSeconds.Int64 <= 0 {
			return errors.New("interval job requires interval_seconds > 0")
		}
	case ScheduleOnce:
		if !j.OnceAtUTC.Valid {
			return errors.New("once job requires once_at_utc")
		}
	default:
		return fmt.Errorf("unknown schedule_type %q", j.ScheduleType)
	}
	return nil
}

// Run is one immutable execution record (a row in runs).
type Run struct {
	ID          int64          `db:"id"`
	JobID       int64          `db:"job_id"`
	StartedUTC  UTCTime        `db:"started_utc"`
	FinishedUTC UTCTime        `db:"finished_utc"`
	Status      string         `db:"status"`
	ExitCode    sql.NullInt64  `db:"exit_code"`
	PID         sql.NullInt64  `db:"pid"`
	Message     sql.NullString `db:"message"`
	StdoutPath  sql.NullString `db:"stdout_path"`
	StderrPath  sql.NullString `db:"stderr_path"`
}

// NullString returns a valid sql.NullString for non-empty s.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NullInt64 returns a valid sql.NullInt64 for non-zero n.
func NullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
