package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mnsched/internal/eventbus"
	"mnsched/internal/schedule"
	"mnsched/internal/store"
	"mnsched/pkg/logx"
)

// RunStarted is published on the event bus when a subprocess launches.
type RunStarted struct {
	JobID int64
	Name  string
	PID   int
}

// RunOutcome is published when a run ends, whatever the status.
type RunOutcome struct {
	JobID    int64
	Name     string
	Status   string
	ExitCode sql.NullInt64
	Duration time.Duration
}

type result struct {
	status   string
	exitCode sql.NullInt64
	pid      sql.NullInt64
	message  string
	started  time.Time
	finished time.Time
}

// stderr tail kept for the run's message column.
const messageLimit = 2048

// execute runs one job as a subprocess: argv from the job's args column,
// optional working dir and env overlay, stdout/stderr appended to the
// job's capture files, killed at timeout_seconds.
func (s *Service) execute(ctx context.Context, j *store.Job) result {
	res := result{started: time.Now()}
	fail := func(msg string) result {
		res.status = store.StatusError
		res.message = msg
		res.finished = time.Now()
		return res
	}

	spec, err := schedule.ParseArgSpec(j.Args)
	if err != nil {
		return fail(err.Error())
	}
	argv := schedule.BuildArgv(j, spec)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout := j.Timeout(); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if j.WorkingDir.Valid && strings.TrimSpace(j.WorkingDir.String) != "" {
		cmd.Dir = j.WorkingDir.String
	}
	env, err := mergeEnv(j.EnvJSON)
	if err != nil {
		return fail(err.Error())
	}
	cmd.Env = env

	stdout, err := captureFile(j.StdoutPath)
	if err != nil {
		return fail(fmt.Sprintf("open stdout capture: %v", err))
	}
	defer stdout.Close()
	stderr, err := captureFile(j.StderrPath)
	if err != nil {
		return fail(fmt.Sprintf("open stderr capture: %v", err))
	}
	defer stderr.Close()

	tail := &tailBuffer{limit: messageLimit}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)

	res.started = time.Now()
	if err := cmd.Start(); err != nil {
		return fail(fmt.Sprintf("start %s: %v", argv[0], err))
	}
	res.pid = sql.NullInt64{Int64: int64(cmd.Process.Pid), Valid: true}
	s.log.Info("job started",
		logx.Int64("job_id", j.ID), logx.String("name", j.Name),
		logx.Int("pid", cmd.Process.Pid), logx.String("program", argv[0]))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeRunStarted,
		Data: RunStarted{JobID: j.ID, Name: j.Name, PID: cmd.Process.Pid},
	})

	waitErr := cmd.Wait()
	res.finished = time.Now()

	if st := cmd.ProcessState; st != nil && st.ExitCode() >= 0 {
		res.exitCode = sql.NullInt64{Int64: int64(st.ExitCode()), Valid: true}
	}

	switch {
	case waitErr == nil:
		res.status = store.StatusOK
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.status = store.StatusTimeout
		res.message = fmt.Sprintf("killed after %s", j.Timeout())
	case ctx.Err() != nil:
		res.status = store.StatusError
		res.message = "killed: dispatcher shutting down"
	default:
		res.status = store.StatusError
		res.message = tail.tailString()
		if res.message == "" {
			res.message = waitErr.Error()
		}
	}
	return res
}

// mergeEnv overlays the job's env_json map onto the daemon environment.
func mergeEnv(envJSON sql.NullString) ([]string, error) {
	env := os.Environ()
	raw := strings.TrimSpace(envJSON.String)
	if !envJSON.Valid || raw == "" {
		return env, nil
	}
	var overlay map[string]string
	if err := json.Unmarshal([]byte(raw), &overlay); err != nil {
		return nil, fmt.Errorf("env_json is not a string map: %w", err)
	}
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env, nil
}

// captureFile opens a job's capture path in append mode, creating parent
// directories as needed. An unset path discards the stream.
func captureFile(path sql.NullString) (io.WriteCloser, error) {
	p := strings.TrimSpace(path.String)
	if !path.Valid || p == "" {
		return nopCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// tailBuffer keeps the last limit bytes written through it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) tailString() string {
	return strings.TrimSpace(string(t.buf))
}
