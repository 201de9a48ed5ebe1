package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  poll_interval: 30s
  job_timeout: 2m
storage:
  driver: sqlite
  path: ./lexflow.db
smtp:
  host: mail.firm.test
  port: 587
  from: scheduler@firm.test
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.PollInterval != "30s" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.SMTP == nil || cfg.SMTP.Port != 587 {
		t.Fatalf("smtp = %+v", cfg.SMTP)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json",
		`{"logging":{"level":"info","console":false,"file":{"enabled":false,"path":""}},"scheduler":{"enabled":true}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" || !cfg.Scheduler.Enabled {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
logging:
  level: info
scheduler:
  enabled: true
  pol_interval: 30s
`)
	_, err := NewManager(path).Parse()
	if err == nil {
		t.Fatal("misspelled key accepted")
	}
	if !strings.Contains(err.Error(), "pol_interval") {
		t.Fatalf("error does not name the bad key: %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{"scheduler":{"enabled":true}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{" 5m ", 5 * time.Minute, false},
		{"", 0, false},
		{"-10s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("scheduler.poll_interval", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%q = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	got, err := ParseDurationOrDefault("scheduler.job_timeout", "", 5*time.Minute)
	if err != nil || got != 5*time.Minute {
		t.Fatalf("empty = (%v, %v), want default", got, err)
	}
	got, err = ParseDurationOrDefault("scheduler.job_timeout", "90s", 5*time.Minute)
	if err != nil || got != 90*time.Second {
		t.Fatalf("set = (%v, %v)", got, err)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("no config delivered")
	}

	// A full buffer drops the stale item in favor of the newest.
	stale, fresh := &Config{}, &Config{}
	m.publish(stale)
	m.publish(fresh)
	if got := <-ch; got != fresh {
		t.Fatal("stale config delivered after overwrite")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel still open after Unsubscribe")
	}
}
