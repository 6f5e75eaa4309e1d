package store

import "context"

// InsertRun appends one immutable execution record. Runs are never
// mutated or pruned; history is the console's problem to page through.
func (s *Store) InsertRun(ctx context.Context, r *Run) (int64, error) {
	if !r.StartedUTC.Valid {
		r.StartedUTC = nowUTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (job_id, started_utc, finished_utc, status, exit_code, pid, message, stdout_path, stderr_path)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.JobID, r.StartedUTC, r.FinishedUTC, r.Status, r.ExitCode, r.PID,
		r.Message, r.StdoutPath, r.StderrPath,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentRuns returns the newest limit runs across all jobs.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, job_id, started_utc, finished_utc, status, exit_code, pid, message, stdout_path, stderr_path
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	return runs, err
}

// RunsForJob returns the newest limit runs of one job.
func (s *Store) RunsForJob(ctx context.Context, jobID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, job_id, started_utc, finished_utc, status, exit_code, pid, message, stdout_path, stderr_path
		FROM runs WHERE job_id=? ORDER BY id DESC LIMIT ?`, jobID, limit)
	return runs, err
}
