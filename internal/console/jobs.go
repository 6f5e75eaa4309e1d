package console

import (
	"fmt"

	"github.com/spf13/cobra"

	"mnsched/internal/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			jobs, err := e.st.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs defined.")
				return nil
			}

			w := newTable()
			fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tENABLED\tRUNNING\tNEXT (UTC)\tLAST (UTC)\tRUNS\tEXIT")
			for i := range jobs {
				j := &jobs[i]
				exit := "-"
				if j.LastExitCode.Valid {
					exit = fmt.Sprintf("%d", j.LastExitCode.Int64)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					j.ID, j.Name, scheduleSummary(j), yn(j.Enabled), yn(j.Running),
					j.NextRunUTC, j.LastRunUTC, j.RunCount, exit)
			}
			return w.Flush()
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job's full definition and state",
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

			w := newTable()
			row := func(k, v string) { fmt.Fprintf(w, "%s\t%s\n", k, v) }
			row("id", fmt.Sprintf("%d", j.ID))
			row("name", j.Name)
			row("program_path", j.ProgramPath)
			row("args", orDash(j.Args))
			row("working_dir", orDash(j.WorkingDir.String))
			row("venv_path", orDash(j.VenvPath.String))
			row("env_json", orDash(j.EnvJSON.String))
			row("schedule_type", j.ScheduleType)
			row("cron_expr", orDash(j.CronExpr.String))
			if j.IntervalSeconds.Valid {
				row("interval_seconds", fmt.Sprintf("%d", j.IntervalSeconds.Int64))
			} else {
				row("interval_seconds", "-")
			}
			row("once_at_utc", j.OnceAtUTC.String())
			row("timezone", j.Timezone)
			row("enabled", yn(j.Enabled))
			row("no_overlap", yn(j.NoOverlap))
			row("timeout_seconds", fmt.Sprintf("%d", j.TimeoutSeconds))
			row("retries", fmt.Sprintf("%d", j.Retries))
			row("retry_backoff_sec", fmt.Sprintf("%d", j.RetryBackoffSec))
			if j.MaxRuns.Valid {
				row("max_runs", fmt.Sprintf("%d", j.MaxRuns.Int64))
			} else {
				row("max_runs", "-")
			}
			row("run_count", fmt.Sprintf("%d", j.RunCount))
			row("next_run_utc", j.NextRunUTC.String())
			row("last_run_utc", j.LastRunUTC.String())
			row("running", yn(j.Running))
			row("claimed_by", orDash(j.ClaimedBy.String))
			if j.LastExitCode.Valid {
				row("last_exit_code", fmt.Sprintf("%d", j.LastExitCode.Int64))
			} else {
				row("last_exit_code", "-")
			}
			row("stdout_path", orDash(j.StdoutPath.String))
			row("stderr_path", orDash(j.StderrPath.String))
			row("log_path", orDash(j.LogPath.String))
			row("created_at_utc", j.CreatedAtUTC)
			row("updated_at_utc", j.UpdatedAtUTC)
			return w.Flush()
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <job-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a job (run history is kept)",
		Args:    cobra.ExactArgs(1),
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
			if !yes {
				return fmt.Errorf("refusing to delete %q without --yes", j.Name)
			}
			if err := e.st.DeleteJob(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Deleted job %d (%s).\n", id, j.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newEnableCmd(enable bool) *cobra.Command {
	use, short, verb := "enable <job-id>", "Enable a job", "enabled"
	if !enable {
		use, short, verb = "disable <job-id>", "Disable a job (claims in flight finish normally)", "disabled"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
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

			if err := e.st.SetEnabled(cmd.Context(), id, enable); err != nil {
				return err
			}
			fmt.Printf("Job %d %s.\n", id, verb)
			return nil
		},
	}
}

func newKickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kick <job-id>",
		Short: "Run a job on the daemon's next poll tick",
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

			if err := e.st.Kick(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Job %d queued for the next tick.\n", id)
			return nil
		},
	}
}

const seedEchoName = "Echo test (1m)"

func newSeedEchoCmd() *cobra.Command {
	var stdoutPath string
	cmd := &cobra.Command{
		Use:   "seed-echo",
		Short: "Install the minute echo smoke-test job, due immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			// Replace any previous copy so repeated seeding stays idempotent.
			jobs, err := e.st.ListJobs(ctx)
			if err != nil {
				return err
			}
			for i := range jobs {
				if jobs[i].Name == seedEchoName {
					if err := e.st.DeleteJob(ctx, jobs[i].ID); err != nil {
						return err
					}
				}
			}

			id, err := e.st.CreateJob(ctx, &store.Job{
				Name:            seedEchoName,
				ProgramPath:     "/bin/echo",
				Args:            "Hello from scheduler",
				ScheduleType:    store.ScheduleInterval,
				IntervalSeconds: store.NullInt64(60),
				Timezone:        e.timezone(),
				Enabled:         true,
				StdoutPath:      store.NullString(stdoutPath),
			})
			if err != nil {
				return err
			}
			if err := e.st.Kick(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Echo test job %d added and scheduled immediately.\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&stdoutPath, "stdout", "./logs/echo_test.out", "stdout capture file")
	return cmd
}
