package config

import "time"

const (
	DefaultPollInterval   = 20 * time.Second
	DefaultMaxConcurrency = 4
	DefaultTimezone       = "America/Denver"
	DefaultBusyTimeout    = 5 * time.Second
	DefaultServiceUnit    = "mnsched.service"
)

func (c SchedulerConfig) PollIntervalOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.poll_interval", c.PollInterval, DefaultPollInterval)
}

func (c SchedulerConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.busy_timeout", c.BusyTimeout, DefaultBusyTimeout)
}

func (c SchedulerConfig) MaxConcurrencyOrDefault() int {
	if c.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return c.MaxConcurrency
}

func (c SchedulerConfig) TimezoneOrDefault() string {
	if c.DefaultTimezone == "" {
		return DefaultTimezone
	}
	return c.DefaultTimezone
}

func (c ServiceConfig) UnitOrDefault() string {
	if c.Unit == "" {
		return DefaultServiceUnit
	}
	return c.Unit
}
