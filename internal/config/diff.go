package config

import (
	"strings"

	"mnsched/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging a reload.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 8)

	if strings.TrimSpace(oldCfg.DBPath) != strings.TrimSpace(newCfg.DBPath) {
		changed = append(changed, "db_path")
		attrs = append(attrs, logx.String("db_path", strings.TrimSpace(newCfg.DBPath)))
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.Int("scheduler.max_concurrency", newCfg.Scheduler.MaxConcurrencyOrDefault()),
			logx.String("scheduler.default_timezone", newCfg.Scheduler.TimezoneOrDefault()),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Service != newCfg.Service {
		changed = append(changed, "service")
		attrs = append(attrs, logx.String("service.unit", newCfg.Service.UnitOrDefault()))
	}

	return changed, attrs
}
