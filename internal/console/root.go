// Package console implements the schedctl command tree: job CRUD against
// the shared SQLite file, run history, log tailing and systemd unit
// control for the daemon.
package console

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mnsched/internal/config"
	"mnsched/internal/store"
)

var (
	flagConfig string
	flagDB     string
)

// Execute runs the schedctl root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schedctl",
		Short:         "Operate the job scheduler: jobs, runs, logs and the daemon unit",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "./mnsched.yaml", "daemon config file (yaml or json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite path (overrides the config file)")

	root.AddCommand(
		newListCmd(),
		newShowCmd(),
		newRunsCmd(),
		newAddCmd(),
		newEditCmd(),
		newCopyCmd(),
		newRemoveCmd(),
		newEnableCmd(true),
		newEnableCmd(false),
		newKickCmd(),
		newLogsCmd(),
		newSeedEchoCmd(),
		newServiceCmd(),
	)
	return root
}

// env bundles what most subcommands need: the parsed daemon config (nil
// when only --db was given) and an open store handle.
type env struct {
	cfg *config.Config
	st  *store.Store
}

func openEnv() (*env, error) {
	e := &env{}
	path := flagDB
	if cfg, err := config.NewManager(flagConfig).Parse(); err == nil {
		e.cfg = cfg
		if path == "" {
			path = cfg.DBPath
		}
	} else if path == "" {
		return nil, fmt.Errorf("load config %s: %w (or pass --db)", flagConfig, err)
	}

	busyTimeout := config.DefaultBusyTimeout
	if e.cfg != nil {
		if bt, err := e.cfg.Scheduler.BusyTimeoutOrDefault(); err == nil {
			busyTimeout = bt
		}
	}
	st, err := store.Open(store.Config{Path: path, BusyTimeout: busyTimeout}, consoleLogger())
	if err != nil {
		return nil, err
	}
	e.st = st
	return e, nil
}

func (e *env) close() {
	if e.st != nil {
		_ = e.st.Close()
	}
}

func (e *env) timezone() string {
	if e.cfg != nil {
		return e.cfg.Scheduler.TimezoneOrDefault()
	}
	return config.DefaultTimezone
}
