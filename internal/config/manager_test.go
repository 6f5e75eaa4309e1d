package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCfg(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeCfg(t, "mnsched.yaml", `
db_path: /tmp/mnsched.db
scheduler:
  poll_interval: 5s
  max_concurrency: 2
  default_timezone: America/Denver
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/mnsched.db" {
		t.Fatalf("db_path = %q", cfg.DBPath)
	}
	d, err := cfg.Scheduler.PollIntervalOrDefault()
	if err != nil {
		t.Fatal(err)
	}
	if d != 5*time.Second {
		t.Fatalf("poll_interval = %v, want 5s", d)
	}
	if cfg.Scheduler.MaxConcurrencyOrDefault() != 2 {
		t.Fatalf("max_concurrency = %d", cfg.Scheduler.MaxConcurrencyOrDefault())
	}
}

func TestParseRejectsNonMappingYAML(t *testing.T) {
	t.Parallel()
	path := writeCfg(t, "list.yaml", `
- db_path: /tmp/a.db
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for a top-level sequence")
	}
}

func TestParseJSONPassthrough(t *testing.T) {
	t.Parallel()
	path := writeCfg(t, "mnsched.json", `{"db_path": "/tmp/mnsched.db", "scheduler": {}, "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DBPath != "/tmp/mnsched.db" {
		t.Fatalf("db_path = %q", cfg.DBPath)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeCfg(t, "bad.yaml", `
db_path: /tmp/x.db
schedular:
  poll_interval: 5s
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "minimal", cfg: Config{DBPath: "/tmp/a.db"}},
		{name: "missing db", cfg: Config{}, wantErr: true},
		{name: "bad interval", cfg: Config{DBPath: "x", Scheduler: SchedulerConfig{PollInterval: "soon"}}, wantErr: true},
		{name: "bad tz", cfg: Config{DBPath: "x", Scheduler: SchedulerConfig{DefaultTimezone: "Mars/Olympus"}}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	var s SchedulerConfig
	d, err := s.PollIntervalOrDefault()
	if err != nil || d != DefaultPollInterval {
		t.Fatalf("poll default = %v err=%v", d, err)
	}
	if s.MaxConcurrencyOrDefault() != DefaultMaxConcurrency {
		t.Fatalf("concurrency default = %d", s.MaxConcurrencyOrDefault())
	}
	if s.TimezoneOrDefault() != DefaultTimezone {
		t.Fatalf("tz default = %s", s.TimezoneOrDefault())
	}
}
