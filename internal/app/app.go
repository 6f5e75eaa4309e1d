// Package app wires the daemon together: config manager, logging
// service, store, schedule calculator and the dispatch loop, plus the
// systemd notify/watchdog integration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"mnsched/internal/config"
	"mnsched/internal/dispatch"
	"mnsched/internal/eventbus"
	"mnsched/internal/runtime/supervisor"
	"mnsched/internal/schedule"
	"mnsched/internal/store"
	"mnsched/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	st   *store.Store
	disp *dispatch.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := cfg.Scheduler.BusyTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.DBPath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	poll, err := cfg.Scheduler.PollIntervalOrDefault()
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	calc := schedule.NewCalculator(cfg.Scheduler.TimezoneOrDefault())
	disp := dispatch.New(st, calc, bus, log, dispatch.Options{
		PollInterval:   poll,
		MaxConcurrency: cfg.Scheduler.MaxConcurrencyOrDefault(),
	})

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		st:      st,
		disp:    disp,
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		// db_path is fixed for the life of the process.
		if cur := a.cfgm.Get(); cur != nil && cfg.DBPath != cur.DBPath {
			return fmt.Errorf("db_path cannot change without a restart")
		}
		return nil
	})

	if err := a.disp.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go("config.apply", a.applyConfigLoop)
	a.sup.Go("systemd.notify", a.notifyLoop)

	a.log.Info("scheduler daemon started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.disp.Stop(stopCtx); err != nil {
		a.log.Warn("dispatcher stop", logx.Err(err))
	}
	err := a.st.Close()
	a.log.Info("scheduler daemon stopped")
	_ = a.logs.Close()
	return err
}

// applyConfigLoop propagates validated config reloads to the live
// services: logging sinks/level and the dispatch poll interval.
func (a *App) applyConfigLoop(ctx context.Context) error {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return nil
			}
			changed, fields := config.SummarizeChange(prev, cfg)
			if len(changed) > 0 {
				a.log.Info("applying config changes", fields...)
			}
			prev = cfg
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.disp.Apply(cfg)
		}
	}
}

// notifyLoop drives sd_notify: READY once, WATCHDOG pings when enabled,
// and a STATUS line mirroring the last run outcome. All calls are no-ops
// outside systemd (NOTIFY_SOCKET unset).
func (a *App) notifyLoop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	_, _ = daemon.SdNotify(false, "STATUS=idle")

	var watchdog <-chan time.Time
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		watchdog = t.C
	}

	events, unsub := a.bus.Subscribe(32)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watchdog:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if status := statusLine(e, a.disp.InFlight()); status != "" {
				_, _ = daemon.SdNotify(false, "STATUS="+status)
			}
		}
	}
}

func statusLine(e eventbus.Event, inflight int64) string {
	switch d := e.Data.(type) {
	case dispatch.RunStarted:
		return fmt.Sprintf("running %q (pid %d), %d in flight", d.Name, d.PID, inflight)
	case dispatch.RunOutcome:
		return fmt.Sprintf("last: %q %s in %s, %d in flight",
			d.Name, d.Status, d.Duration.Round(time.Millisecond), inflight)
	}
	return ""
}
