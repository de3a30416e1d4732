package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pricehub/internal/sink"
)

// Helper to create a temp config file.
func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "pricehub.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	return configPath
}

const validConfigYAML = `
ingest:
  catalog: sources.yaml
  max_concurrent_fetches: 8
  fetch_timeout_sec: 5
  run_timeout_sec: 60
  requests_per_second: 2.5
  max_body_kb: 512
  user_agent: test-agent
sink:
  dedupe: daily
logging:
  level: debug
`

func TestLoadConfig_Valid(t *testing.T) {
	configPath := createTempConfigFile(t, validConfigYAML)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if want := filepath.Join(filepath.Dir(configPath), "sources.yaml"); cfg.Ingest.Catalog != want {
		t.Errorf("Catalog = %q, want %q", cfg.Ingest.Catalog, want)
	}
	if cfg.Ingest.MaxConcurrentFetches != 8 {
		t.Errorf("MaxConcurrentFetches = %d, want 8", cfg.Ingest.MaxConcurrentFetches)
	}
	if cfg.Dedupe() != sink.DedupeDaily {
		t.Errorf("Dedupe = %q, want daily", cfg.Dedupe())
	}
	if cfg.RunTimeout() != time.Minute {
		t.Errorf("RunTimeout = %v, want 1m", cfg.RunTimeout())
	}

	opts := cfg.FetchOptions()
	if opts.Timeout != 5*time.Second || opts.RequestsPerSecond != 2.5 || opts.MaxBodyBytes != 512*1024 || opts.UserAgent != "test-agent" {
		t.Errorf("FetchOptions = %+v", opts)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	configPath := createTempConfigFile(t, "logging:\n  level: warn\n")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	d := Default()
	if cfg.Ingest.MaxConcurrentFetches != d.Ingest.MaxConcurrentFetches || cfg.Ingest.FetchTimeoutSec != d.Ingest.FetchTimeoutSec {
		t.Errorf("defaults not applied: %+v", cfg.Ingest)
	}
	if cfg.Dedupe() != sink.DedupeNone {
		t.Errorf("Dedupe = %q, want none", cfg.Dedupe())
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_AbsoluteCatalog(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "elsewhere.json")
	configPath := createTempConfigFile(t, "ingest:\n  catalog: "+abs+"\n")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.Catalog != abs {
		t.Errorf("Catalog = %q, want %q", cfg.Ingest.Catalog, abs)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("want error for missing file")
	}
	if _, err := LoadConfig(createTempConfigFile(t, "ingest: [unclosed")); err == nil {
		t.Error("want error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"missing catalog", func(c *Config) { c.Ingest.Catalog = " " }, ErrMissingCatalog},
		{"zero concurrency", func(c *Config) { c.Ingest.MaxConcurrentFetches = 0 }, ErrInvalidConcurrency},
		{"zero fetch timeout", func(c *Config) { c.Ingest.FetchTimeoutSec = 0 }, ErrInvalidFetchTimeout},
		{"negative run timeout", func(c *Config) { c.Ingest.RunTimeoutSec = -1 }, ErrInvalidRunTimeout},
		{"negative rate", func(c *Config) { c.Ingest.RequestsPerSecond = -1 }, ErrInvalidRate},
		{"zero body limit", func(c *Config) { c.Ingest.MaxBodyKB = 0 }, ErrInvalidBodyLimit},
		{"bad dedupe", func(c *Config) { c.Sink.Dedupe = "weekly" }, ErrInvalidDedupe},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, ErrInvalidLogLevel},
		{"unbounded run ok", func(c *Config) { c.Ingest.RunTimeoutSec = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
