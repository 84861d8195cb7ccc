package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/seoforge/internal/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Storage.ResultTTL != time.Hour {
		t.Errorf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.LLM.Model != "gemini-2.5-flash" || cfg.PageSpeed.Timeout != 300*time.Second {
		t.Errorf("unexpected collaborator defaults %+v %+v", cfg.LLM, cfg.PageSpeed)
	}
	if cfg.Autocomplete.Timeout != 8*time.Second || cfg.Autocomplete.Concurrency != 8 {
		t.Errorf("unexpected autocomplete defaults %+v", cfg.Autocomplete)
	}
	if cfg.LongTail.MaxDepth != 3 || cfg.LongTail.MaxNodes != 500 {
		t.Errorf("unexpected longtail defaults %+v", cfg.LongTail)
	}
	if cfg.API.SubmissionsPerMinute != 30 || !cfg.Fetch.RespectRobots {
		t.Errorf("unexpected defaults %+v %+v", cfg.API, cfg.Fetch)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEOFORGE_WORKERS_COUNT", "2")
	t.Setenv("SEOFORGE_FETCH_TIMEOUT", "30s")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("SEOFORGE_PAGESPEED_API_KEY", "p-key")
	t.Setenv("PAGESPEED_API_KEY", "ignored")
	t.Setenv("SEOFORGE_STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/seo")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers.Count != 2 || cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Workers, cfg.Fetch)
	}
	if cfg.LLM.APIKey != "g-key" {
		t.Errorf("GOOGLE_API_KEY not bound, got %q", cfg.LLM.APIKey)
	}
	if cfg.PageSpeed.APIKey != "p-key" {
		t.Errorf("prefixed variable should win, got %q", cfg.PageSpeed.APIKey)
	}
	if cfg.Storage.DSN != "postgres://localhost/seo" {
		t.Errorf("DATABASE_URL not bound, got %q", cfg.Storage.DSN)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SEOFORGE_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SEOFORGE_LOG_LEVEL") })

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected .env to set log level, got %q", cfg.Log.Level)
	}
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "seoforge.yaml")
	content := `
storage:
  driver: sqlite
  dsn: jobs.db
fetch:
  fingerprint: firefox
  proxies:
    - http://10.0.0.1:3128
    - 10.0.0.2:3128
longtail:
  max_nodes: 50
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "jobs.db" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Fetch.Fingerprint != "firefox" || len(cfg.Fetch.Proxies) != 2 {
		t.Errorf("unexpected fetch %+v", cfg.Fetch)
	}
	if cfg.LongTail.MaxNodes != 50 || cfg.LongTail.MaxDepth != 3 {
		t.Errorf("file should merge over defaults, got %+v", cfg.LongTail)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("", nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage driver"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.dsn"},
		{"redis without url", func(c *Config) { c.Storage.Driver = "redis" }, "storage.redis_url"},
		{"no workers", func(c *Config) { c.Workers.Count = 0 }, "workers.count"},
		{"fetch timeout too long", func(c *Config) { c.Fetch.Timeout = 200 * time.Second }, "fetch.timeout"},
		{"bad fingerprint", func(c *Config) { c.Fetch.Fingerprint = "opera" }, "fetch.fingerprint"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Errorf("expected configuration category, got %v", err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn, got %s", buf.String())
	}

	LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf).Debug("shown", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %s", buf.String())
	}
}
