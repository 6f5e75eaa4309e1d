package config

// Config is the daemon's on-disk configuration (YAML or JSON).
//
// All durations are Go duration strings (e.g. "20s", "1m").
type Config struct {
	// DBPath is the SQLite file that owns all job/run state.
	// Changing it requires a restart; the watcher rejects in-place edits.
	DBPath string `json:"db_path"`

	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	Service   ServiceConfig   `json:"service,omitempty"`
}

// SchedulerConfig controls the dispatch loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "20s"
//   - max_concurrency: 4
//   - default_timezone: "America/Denver"
type SchedulerConfig struct {
	// PollInterval is the tick period. Applies on reload.
	PollInterval string `json:"poll_interval,omitempty"`

	// MaxConcurrency bounds concurrently running job subprocesses
	// (worker pool size). Requires a restart to change.
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// DefaultTimezone is used for cron jobs whose row has no timezone.
	DefaultTimezone string `json:"default_timezone,omitempty"`

	// BusyTimeout is the SQLite busy_timeout pragma.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ServiceConfig names the systemd unit so schedctl can drive it.
type ServiceConfig struct {
	Unit string `json:"unit,omitempty"` // default: "mnsched.service"
	User bool   `json:"user,omitempty"` // systemctl --user
}
