// Package dispatch owns the polling loop: refresh next_run_utc for jobs
// that lack one, claim due jobs through the store's running-flag CAS, and
// execute them as subprocesses on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mnsched/internal/config"
	"mnsched/internal/eventbus"
	"mnsched/internal/runtime/supervisor"
	"mnsched/internal/schedule"
	"mnsched/internal/store"
	"mnsched/pkg/logx"
)

type Options struct {
	PollInterval   time.Duration
	MaxConcurrency int
}

// Service runs the scheduler loop. One Service per process; the claim
// protocol in the store makes extra processes harmless but pointless.
type Service struct {
	store *store.Store
	calc  *schedule.Calculator
	bus   eventbus.Bus
	log   logx.Logger

	// owner tags claimed_by so stale rows are attributable to a process
	// incarnation after a crash.
	owner string

	workers int
	pollNS  atomic.Int64

	queue    chan *store.Job
	inflight atomic.Int64

	sup *supervisor.Supervisor

	// errLimit keeps a broken database or filesystem from flooding the
	// log at one line per tick.
	errLimit *rate.Limiter

	// warned tracks malformed schedule rows already logged, keyed by job
	// id, so a bad cron expression warns once per distinct error instead
	// of every tick.
	warnedMu sync.Mutex
	warned   map[int64]string
}

func New(st *store.Store, calc *schedule.Calculator, bus eventbus.Bus, log logx.Logger, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = config.DefaultMaxConcurrency
	}
	s := &Service{
		store:    st,
		calc:     calc,
		bus:      bus,
		log:      log.With(logx.String("comp", "dispatch")),
		owner:    uuid.NewString(),
		workers:  opts.MaxConcurrency,
		errLimit: rate.NewLimiter(rate.Every(30*time.Second), 3),
		warned:   map[int64]string{},
	}
	s.pollNS.Store(int64(opts.PollInterval))
	return s
}

// PollInterval returns the current tick period.
func (s *Service) PollInterval() time.Duration {
	return time.Duration(s.pollNS.Load())
}

// Apply picks up runtime-tunable settings from a reloaded config. The
// poll interval takes effect on the next tick; the worker pool size is
// fixed at Start and a change only logs until restart.
func (s *Service) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if d, err := cfg.Scheduler.PollIntervalOrDefault(); err == nil && d != s.PollInterval() {
		s.log.Info("poll interval updated", logx.Duration("poll_interval", d))
		s.pollNS.Store(int64(d))
	}
	if n := cfg.Scheduler.MaxConcurrencyOrDefault(); n != s.workers {
		s.log.Warn("max_concurrency change requires restart",
			logx.Int("running", s.workers), logx.Int("configured", n))
	}
}

// InFlight reports the number of jobs currently executing.
func (s *Service) InFlight() int64 { return s.inflight.Load() }

// Start releases stale claims from a previous incarnation, then brings up
// the worker pool and the tick loop.
func (s *Service) Start(ctx context.Context) error {
	released, err := s.store.ResetRunning(ctx)
	if err != nil {
		return fmt.Errorf("reset stale running flags: %w", err)
	}
	if released > 0 {
		s.log.Warn("released stale claims from previous run", logx.Int64("jobs", released))
	}

	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.queue = make(chan *store.Job, s.workers)
	for i := 0; i < s.workers; i++ {
		s.sup.Go(fmt.Sprintf("worker-%d", i), s.worker)
	}
	s.sup.GoRestart("tick-loop", s.loop)

	s.log.Info("dispatcher started",
		logx.Duration("poll_interval", s.PollInterval()),
		logx.Int("max_concurrency", s.workers),
		logx.String("owner", s.owner))
	return nil
}

// Stop cancels the loop and waits for in-flight subprocesses to be
// killed and recorded, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	s.sup.Cancel()
	return s.sup.Wait(ctx)
}

func (s *Service) loop(ctx context.Context) error {
	// First tick immediately so a freshly started daemon picks up overdue
	// work without waiting a full poll interval.
	for {
		if err := s.tick(ctx, time.Now()); err != nil && !errors.Is(err, context.Canceled) {
			if s.errLimit.Allow() {
				s.log.Error("tick failed", logx.Err(err))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.PollInterval()):
		}
	}
}

func (s *Service) tick(ctx context.Context, now time.Time) error {
	if err := s.refresh(ctx, now); err != nil {
		return err
	}

	free := s.workers - int(s.inflight.Load())
	if free <= 0 {
		return nil
	}
	// Claim only what a free worker can start right now. Jobs left due
	// are picked up by a later tick; this keeps running=1 truthful.
	due, err := s.store.DueJobs(ctx, now, free)
	if err != nil {
		return fmt.Errorf("query due jobs: %w", err)
	}
	for i := range due {
		j := &due[i]
		claimed, err := s.store.TryClaim(ctx, j.ID, s.owner)
		if err != nil {
			return fmt.Errorf("claim job %d: %w", j.ID, err)
		}
		if !claimed {
			// Lost the race to another process, or a no_overlap job is
			// still running. Either way, not ours this tick.
			s.log.Debug("claim declined", logx.Int64("job_id", j.ID), logx.String("name", j.Name))
			continue
		}
		s.inflight.Add(1)
		select {
		case s.queue <- j:
		case <-ctx.Done():
			// Shutting down with a claim held but no worker started; give
			// the claim back so the job is not stuck until the next
			// startup reset.
			s.inflight.Add(-1)
			_ = s.store.ReleaseClaim(context.WithoutCancel(ctx), j.ID)
			return nil
		}
	}
	return nil
}

// refresh fills in next_run_utc for enabled jobs missing one: newly
// created jobs, edited jobs, and interval/cron jobs after each run.
// Executed once jobs are terminal and stay NULL, unless the operator
// edits once_at_utc back into the future, which re-arms them.
func (s *Service) refresh(ctx context.Context, now time.Time) error {
	jobs, err := s.store.MissingNextRun(ctx)
	if err != nil {
		return fmt.Errorf("query jobs missing next_run: %w", err)
	}
	for i := range jobs {
		j := &jobs[i]
		if j.ScheduleType == store.ScheduleOnce && j.RunCount > 0 {
			if !j.OnceAtUTC.Valid || !j.OnceAtUTC.Time.After(now) {
				continue
			}
		}
		next, ok, err := s.calc.Next(j, now)
		if err != nil {
			s.warnOnce(j, err)
			continue
		}
		s.clearWarn(j.ID)
		if !ok {
			continue
		}
		if err := s.store.SetNextRun(ctx, j.ID, store.UTC(next)); err != nil {
			return fmt.Errorf("set next_run for job %d: %w", j.ID, err)
		}
		s.log.Debug("next run scheduled",
			logx.Int64("job_id", j.ID), logx.String("name", j.Name), logx.Time("next_run", next))
	}
	return nil
}

func (s *Service) warnOnce(j *store.Job, err error) {
	s.warnedMu.Lock()
	prev, seen := s.warned[j.ID]
	s.warned[j.ID] = err.Error()
	s.warnedMu.Unlock()
	if seen && prev == err.Error() {
		return
	}
	s.log.Warn("job schedule is malformed, leaving inert",
		logx.Int64("job_id", j.ID), logx.String("name", j.Name), logx.Err(err))
}

func (s *Service) clearWarn(id int64) {
	s.warnedMu.Lock()
	delete(s.warned, id)
	s.warnedMu.Unlock()
}

func (s *Service) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.queue:
			s.runOne(ctx, j)
			s.inflight.Add(-1)
		}
	}
}

// runOne executes one claimed job and releases the claim, whatever
// happens. Store writes after the subprocess use a detached context so a
// shutdown mid-run still records the outcome.
func (s *Service) runOne(ctx context.Context, j *store.Job) {
	res := s.execute(ctx, j)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	run := &store.Run{
		JobID:       j.ID,
		StartedUTC:  store.UTC(res.started),
		FinishedUTC: store.UTC(res.finished),
		Status:      res.status,
		ExitCode:    res.exitCode,
		PID:         res.pid,
		Message:     store.NullString(res.message),
		StdoutPath:  j.StdoutPath,
		StderrPath:  j.StderrPath,
	}
	if _, err := s.store.InsertRun(dctx, run); err != nil {
		s.log.Error("record run failed", logx.Int64("job_id", j.ID), logx.Err(err))
	}

	// Reschedule from this run's start time. Once jobs go terminal (NULL).
	var next store.UTCTime
	if j.ScheduleType != store.ScheduleOnce {
		jc := *j
		jc.LastRunUTC = store.UTC(res.started)
		if n, ok, err := s.calc.Next(&jc, res.finished); err != nil {
			s.warnOnce(j, err)
		} else if ok {
			next = store.UTC(n)
		}
	}
	if err := s.store.FinishJob(dctx, j.ID, next, res.started, res.exitCode); err != nil {
		s.log.Error("finish job failed", logx.Int64("job_id", j.ID), logx.Err(err))
	}

	dur := res.finished.Sub(res.started)
	fields := []logx.Field{
		logx.Int64("job_id", j.ID), logx.String("name", j.Name),
		logx.String("status", res.status), logx.Duration("took", dur),
	}
	if res.exitCode.Valid {
		fields = append(fields, logx.Int64("exit_code", res.exitCode.Int64))
	}
	outcome := RunOutcome{
		JobID: j.ID, Name: j.Name, Status: res.status,
		ExitCode: res.exitCode, Duration: dur,
	}
	switch res.status {
	case store.StatusOK:
		s.log.Info("job finished", fields...)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: outcome})
	case store.StatusTimeout:
		s.log.Warn("job timed out", fields...)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunTimeout, Data: outcome})
	default:
		s.log.Warn("job failed", append(fields, logx.String("message", res.message))...)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFailed, Data: outcome})
	}
}
