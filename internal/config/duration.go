package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationOrDefault reads a Go duration string from the config,
// with empty and "0" both meaning "use def". path names the field in
// error messages ("scheduler.poll_interval").
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
