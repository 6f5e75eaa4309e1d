package console

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mnsched/internal/schedule"
	"mnsched/internal/store"
)

// jobFlags is the flag set shared by add, edit and copy. Every field of
// the jobs row that operators set by hand is reachable here; edit/copy
// only apply the flags actually passed.
type jobFlags struct {
	name        string
	program     string
	args        string
	workingDir  string
	venv        string
	envJSON     string
	schedType   string
	cronExpr    string
	intervalSec int64
	onceAt      string
	timezone    string
	enabled     bool
	noOverlap   bool
	timeoutSec  int64
	retries     int64
	backoffSec  int64
	maxRuns     int64
	stdoutPath  string
	stderrPath  string
	logPath     string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "job name")
	fl.StringVar(&f.program, "program", "", "absolute program path (.py runs under python)")
	fl.StringVar(&f.args, "args", "", "arguments: shell-style string or JSON array")
	fl.StringVar(&f.workingDir, "workdir", "", "working directory")
	fl.StringVar(&f.venv, "venv", "", "virtualenv root for .py programs")
	fl.StringVar(&f.envJSON, "env-json", "", `extra environment as JSON map, e.g. {"K":"v"}`)
	fl.StringVar(&f.schedType, "type", "", "schedule type: cron, interval or once")
	fl.StringVar(&f.cronExpr, "cron", "", "cron expression (5-field, local timezone)")
	fl.Int64Var(&f.intervalSec, "interval", 0, "interval seconds")
	fl.StringVar(&f.onceAt, "once-at", "", `one-time run, local "YYYY-MM-DD HH:MM"`)
	fl.StringVar(&f.timezone, "tz", "", "IANA timezone for cron/once")
	fl.BoolVar(&f.enabled, "enabled", true, "job enabled")
	fl.BoolVar(&f.noOverlap, "no-overlap", true, "prevent overlapping runs")
	fl.Int64Var(&f.timeoutSec, "timeout", 0, "subprocess timeout seconds (0 = none)")
	fl.Int64Var(&f.retries, "retries", 0, "retry count on error (recorded, not yet executed)")
	fl.Int64Var(&f.backoffSec, "retry-backoff", 60, "retry backoff seconds (recorded, not yet executed)")
	fl.Int64Var(&f.maxRuns, "max-runs", 0, "stop after N runs, 0 = unlimited (recorded, not yet executed)")
	fl.StringVar(&f.stdoutPath, "stdout", "", "stdout capture file (append mode)")
	fl.StringVar(&f.stderrPath, "stderr", "", "stderr capture file (append mode)")
	fl.StringVar(&f.logPath, "log", "", "job-owned log file path, for `schedctl logs`")
}

// apply copies passed flags onto j. Flags not given on the command line
// leave the existing value alone, which makes edit and copy behave like
// the old prompt-with-default flow.
func (f *jobFlags) apply(cmd *cobra.Command, j *store.Job, defaultTZ string) error {
	fl := cmd.Flags()
	set := func(name string, fn func()) {
		if fl.Changed(name) {
			fn()
		}
	}

	set("name", func() { j.Name = f.name })
	set("program", func() { j.ProgramPath = f.program })
	set("args", func() { j.Args = f.args })
	set("workdir", func() { j.WorkingDir = store.NullString(f.workingDir) })
	set("venv", func() { j.VenvPath = store.NullString(f.venv) })
	set("env-json", func() { j.EnvJSON = store.NullString(f.envJSON) })
	set("type", func() { j.ScheduleType = strings.ToLower(f.schedType) })
	set("cron", func() { j.CronExpr = store.NullString(f.cronExpr) })
	set("interval", func() { j.IntervalSeconds = store.NullInt64(f.intervalSec) })
	set("tz", func() { j.Timezone = f.timezone })
	set("enabled", func() { j.Enabled = f.enabled })
	set("no-overlap", func() { j.NoOverlap = f.noOverlap })
	set("timeout", func() { j.TimeoutSeconds = f.timeoutSec })
	set("retries", func() { j.Retries = f.retries })
	set("retry-backoff", func() { j.RetryBackoffSec = f.backoffSec })
	set("max-runs", func() { j.MaxRuns = store.NullInt64(f.maxRuns) })
	set("stdout", func() { j.StdoutPath = store.NullString(f.stdoutPath) })
	set("stderr", func() { j.StderrPath = store.NullString(f.stderrPath) })
	set("log", func() { j.LogPath = store.NullString(f.logPath) })

	if j.Timezone == "" {
		j.Timezone = defaultTZ
	}
	if fl.Changed("once-at") {
		t, err := parseLocalOnce(f.onceAt, j.Timezone)
		if err != nil {
			return err
		}
		j.OnceAtUTC = store.UTC(t)
	}
	return validateJobInput(j)
}

// validateJobInput rejects definitions the daemon would only discover to
// be broken at dispatch time: bad cron expressions, untokenizable args,
// malformed env maps.
func validateJobInput(j *store.Job) error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("--name is required")
	}
	if strings.TrimSpace(j.ProgramPath) == "" {
		return fmt.Errorf("--program is required")
	}
	if err := j.ValidateSchedule(); err != nil {
		return err
	}
	if j.ScheduleType == store.ScheduleCron {
		calc := schedule.NewCalculator(j.Timezone)
		if _, _, err := calc.Next(j, time.Now()); err != nil {
			return err
		}
	}
	if _, err := schedule.ParseArgSpec(j.Args); err != nil {
		return err
	}
	if j.EnvJSON.Valid && strings.TrimSpace(j.EnvJSON.String) != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(j.EnvJSON.String), &m); err != nil {
			return fmt.Errorf("--env-json is not a string map: %w", err)
		}
	}
	return nil
}

func newAddCmd() *cobra.Command {
	var (
		f    jobFlags
		kick bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			j := &store.Job{}
			if err := f.apply(cmd, j, e.timezone()); err != nil {
				return err
			}
			id, err := e.st.CreateJob(cmd.Context(), j)
			if err != nil {
				return err
			}
			if kick {
				if err := e.st.Kick(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Printf("Created job %d (%s), due on the daemon's next tick.\n", id, j.Name)
				return nil
			}
			fmt.Printf("Created job %d (%s); first run is computed on the daemon's next tick.\n", id, j.Name)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&kick, "kick", false, "make the job due immediately instead of waiting for its schedule")
	return cmd
}

func newEditCmd() *cobra.Command {
	var f jobFlags
	cmd := &cobra.Command{
		Use:   "edit <job-id>",
		Short: "Edit a job; only the flags passed change, and the schedule is recomputed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			j, err := e.st.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, j, e.timezone()); err != nil {
				return err
			}
			if err := e.st.UpdateJob(cmd.Context(), j); err != nil {
				return err
			}
			fmt.Printf("Updated job %d (%s); next run recomputed on the daemon's next tick.\n", id, j.Name)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCopyCmd() *cobra.Command {
	var f jobFlags
	cmd := &cobra.Command{
		Use:   "copy <source-job-id>",
		Short: "Create a job from an existing one, overriding fields via flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			src, err := e.st.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			j := *src
			j.ID = 0
			if !cmd.Flags().Changed("name") {
				j.Name = src.Name + " (copy)"
			}
			if err := f.apply(cmd, &j, e.timezone()); err != nil {
				return err
			}
			newID, err := e.st.CreateJob(cmd.Context(), &j)
			if err != nil {
				return err
			}
			fmt.Printf("Copied job %d to %d (%s).\n", id, newID, j.Name)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
