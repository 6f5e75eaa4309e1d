package console

import (
	"fmt"

	"github.com/spf13/cobra"

	"mnsched/internal/config"
	"mnsched/pkg/systemd"
)

// serviceUnit resolves the daemon's systemd unit from the config file,
// falling back to the default when only --db was given.
func serviceUnit() systemd.Unit {
	u := systemd.Unit{Name: config.DefaultServiceUnit}
	if cfg, err := config.NewManager(flagConfig).Parse(); err == nil {
		u.Name = cfg.Service.UnitOrDefault()
		u.User = cfg.Service.User
	}
	return u
}

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Control the scheduler daemon's systemd unit",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show unit status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := serviceUnit()
			out, err := u.Status(cmd.Context())
			fmt.Print(out)
			if err != nil {
				// status exits non-zero for inactive units; the output
				// above already says so.
				active, _ := u.IsActive(cmd.Context())
				if !active {
					return nil
				}
			}
			return err
		},
	})

	for _, action := range []struct {
		use string
		run func(u systemd.Unit, cmd *cobra.Command) error
	}{
		{"start", func(u systemd.Unit, cmd *cobra.Command) error { return u.Start(cmd.Context()) }},
		{"stop", func(u systemd.Unit, cmd *cobra.Command) error { return u.Stop(cmd.Context()) }},
		{"restart", func(u systemd.Unit, cmd *cobra.Command) error { return u.Restart(cmd.Context()) }},
	} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.use + " the daemon unit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				u := serviceUnit()
				if err := action.run(u, cmd); err != nil {
					return fmt.Errorf("systemctl %s %s: %w", action.use, u.Name, err)
				}
				fmt.Printf("%s: %s requested.\n", u.Name, action.use)
				return nil
			},
		})
	}

	var (
		lines  int
		follow bool
	)
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon's journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := serviceUnit()
			if follow {
				return u.FollowJournal(cmd.Context())
			}
			out, err := u.Journal(cmd.Context(), lines)
			fmt.Print(out)
			return err
		},
	}
	logs.Flags().IntVarP(&lines, "lines", "n", 200, "journal lines to show")
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "follow the journal (Ctrl+C to stop)")
	cmd.AddCommand(logs)

	return cmd
}
