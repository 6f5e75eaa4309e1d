package console

import (
	"fmt"

	"github.com/spf13/cobra"

	"mnsched/internal/store"
)

func newRunsCmd() *cobra.Command {
	var (
		limit int
		jobID int64
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			var runs []store.Run
			if jobID > 0 {
				runs, err = e.st.RunsForJob(cmd.Context(), jobID, limit)
			} else {
				runs, err = e.st.RecentRuns(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			// Resolve names once; deleted jobs render as "?".
			names := map[int64]string{}
			jobs, err := e.st.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			for i := range jobs {
				names[jobs[i].ID] = jobs[i].Name
			}

			w := newTable()
			fmt.Fprintln(w, "RUN\tJOB\tNAME\tSTARTED (UTC)\tFINISHED (UTC)\tSTATUS\tEXIT\tPID\tMESSAGE")
			for _, r := range runs {
				name := names[r.JobID]
				if name == "" {
					name = "?"
				}
				exit, pid := "-", "-"
				if r.ExitCode.Valid {
					exit = fmt.Sprintf("%d", r.ExitCode.Int64)
				}
				if r.PID.Valid {
					pid = fmt.Sprintf("%d", r.PID.Int64)
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.JobID, name, r.StartedUTC, r.FinishedUTC,
					r.Status, exit, pid, orDash(r.Message.String))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().Int64Var(&jobID, "job", 0, "restrict to one job id")
	return cmd
}
