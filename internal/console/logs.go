package console

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mnsched/pkg/logtail"
)

func newLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Tail a job's capture files (stdout, stderr, log)",
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

			sections := []struct {
				label string
				path  string
			}{
				{"stdout", j.StdoutPath.String},
				{"stderr", j.StderrPath.String},
				{"log", j.LogPath.String},
			}
			shown := 0
			for _, sec := range sections {
				if strings.TrimSpace(sec.path) == "" {
					continue
				}
				tail, ok, err := logtail.LastLines(sec.path, lines)
				fmt.Printf("--- %s: %s ---\n", sec.label, sec.path)
				switch {
				case err != nil:
					fmt.Printf("(unreadable: %v)\n", err)
				case !ok:
					fmt.Println("(no file yet)")
				case len(tail) == 0:
					fmt.Println("(empty)")
				default:
					for _, line := range tail {
						fmt.Println(line)
					}
				}
				shown++
			}
			if shown == 0 {
				fmt.Printf("Job %d (%s) has no capture paths configured.\n", j.ID, j.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 40, "lines per file")
	return cmd
}
