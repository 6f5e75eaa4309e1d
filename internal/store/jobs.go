package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const jobColumns = `id, name, program_path, args, working_dir, venv_path, env_json,
 schedule_type, cron_expr, interval_seconds, once_at_utc, timezone,
 enabled, no_overlap, timeout_seconds, retries, retry_backoff_sec, max_runs,
 run_count, next_run_utc, last_run_utc, running, claimed_by, last_exit_code,
 stdout_path, stderr_path, log_path, created_at_utc, updated_at_utc`

// CreateJob inserts a new job definition and returns its id.
// next_run_utc is left NULL; the dispatcher's refresh phase fills it in.
func (s *Store) CreateJob(ctx context.Context, j *Job) (int64, error) {
	if err := j.ValidateSchedule(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
		  name, program_path, args, working_dir, venv_path, env_json,
		  schedule_type, cron_expr, interval_seconds, once_at_utc, timezone,
		  enabled, no_overlap, timeout_seconds, retries, retry_backoff_sec, max_runs,
		  stdout_path, stderr_path, log_path
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.Name, j.ProgramPath, j.Args, j.WorkingDir, j.VenvPath, j.EnvJSON,
		j.ScheduleType, j.CronExpr, j.IntervalSeconds, j.OnceAtUTC, j.Timezone,
		j.Enabled, j.NoOverlap, j.TimeoutSeconds, j.Retries, j.RetryBackoffSec, j.MaxRuns,
		j.StdoutPath, j.StderrPath, j.LogPath,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateJob rewrites a job's definition and clears next_run_utc so the
// dispatcher recomputes it on the next tick.
func (s *Store) UpdateJob(ctx context.Context, j *Job) error {
	if err := j.ValidateSchedule(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET
		  name=?, program_path=?, args=?, working_dir=?, venv_path=?, env_json=?,
		  schedule_type=?, cron_expr=?, interval_seconds=?, once_at_utc=?, timezone=?,
		  enabled=?, no_overlap=?, timeout_seconds=?, retries=?, retry_backoff_sec=?, max_runs=?,
		  stdout_path=?, stderr_path=?, log_path=?,
		  next_run_utc=NULL, updated_at_utc=?
		WHERE id=?`,
		j.Name, j.ProgramPath, j.Args, j.WorkingDir, j.VenvPath, j.EnvJSON,
		j.ScheduleType, j.CronExpr, j.IntervalSeconds, j.OnceAtUTC, j.Timezone,
		j.Enabled, j.NoOverlap, j.TimeoutSeconds, j.Retries, j.RetryBackoffSec, j.MaxRuns,
		j.StdoutPath, j.StderrPath, j.LogPath,
		nowUTC(), j.ID,
	)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	var j Job
	err := s.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := s.db.SelectContext(ctx, &jobs, `SELECT `+jobColumns+` FROM jobs ORDER BY id ASC`)
	return jobs, err
}

func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (s *Store) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET enabled=?, updated_at_utc=? WHERE id=?`, enabled, nowUTC(), id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// Kick marks a job due immediately (next_run_utc a minute in the past) so
// the next tick picks it up.
func (s *Store) Kick(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET next_run_utc=?, updated_at_utc=? WHERE id=?`,
		UTC(time.Now().Add(-time.Minute)), nowUTC(), id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// MissingNextRun returns enabled jobs whose next_run_utc is NULL: newly
// created jobs and jobs whose definition was edited. Finished once jobs
// stay NULL too, but they are disabled from scheduling by the due-job
// query requiring next_run_utc IS NOT NULL after the dispatcher declines
// to refresh them (see dispatch.refresh).
func (s *Store) MissingNextRun(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM jobs WHERE enabled=1 AND next_run_utc IS NULL ORDER BY id ASC`)
	return jobs, err
}

func (s *Store) SetNextRun(ctx context.Context, id int64, next UTCTime) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET next_run_utc=?, updated_at_utc=? WHERE id=?`, next, nowUTC(), id)
	return err
}

// DueJobs returns up to limit enabled jobs whose next_run_utc has passed,
// earliest due first (id breaks ties). Jobs with no_overlap set that are
// already running are excluded up front; TryClaim is still the authority.
func (s *Store) DueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	var jobs []Job
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM jobs
		WHERE enabled=1 AND next_run_utc IS NOT NULL AND next_run_utc <= ?
		  AND (no_overlap=0 OR running=0)
		ORDER BY next_run_utc ASC, id ASC
		LIMIT ?`, UTC(now), limit)
	return jobs, err
}

// TryClaim atomically marks a job running on behalf of owner. The
// affected-row count decides the claim: under SQLite's single-writer
// serialization only one caller can flip running 0->1, so a false return
// means another process (or a previous unfinished run with no_overlap)
// holds the job.
func (s *Store) TryClaim(ctx context.Context, id int64, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET running=1, claimed_by=?, updated_at_utc=? WHERE id=? AND (running=0 OR no_overlap=0)`,
		owner, nowUTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishJob releases a claim and records the outcome: bumps run_count,
// stamps last_run_utc/last_exit_code and persists the recomputed
// next_run_utc (invalid for a once job's terminal state).
func (s *Store) FinishJob(ctx context.Context, id int64, next UTCTime, lastRun time.Time, exitCode sql.NullInt64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET next_run_utc=?, last_run_utc=?, run_count=run_count+1,
		  last_exit_code=?, running=0, claimed_by=NULL, updated_at_utc=?
		WHERE id=?`,
		next, UTC(lastRun), exitCode, nowUTC(), id)
	return err
}

// ReleaseClaim drops a claim without recording a run. Used when the
// dispatcher claimed a job but shut down before a worker picked it up.
func (s *Store) ReleaseClaim(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET running=0, claimed_by=NULL, updated_at_utc=? WHERE id=?`, nowUTC(), id)
	return err
}

// ResetRunning clears stale claims left behind by a crashed dispatcher.
// Called once at startup, before the first tick.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET running=0, claimed_by=NULL, updated_at_utc=? WHERE running=1`, nowUTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
