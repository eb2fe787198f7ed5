package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Download.Concurrency != DefaultConcurrency {
		t.Fatalf("expected concurrency %d, got %d", DefaultConcurrency, cfg.Download.Concurrency)
	}
	if cfg.Download.FailurePolicy != PolicyFailFast {
		t.Fatalf("expected fail-fast policy, got %q", cfg.Download.FailurePolicy)
	}
	if cfg.Download.RetryAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.Download.RetryAttempts)
	}
	if cfg.Download.RetryBackoff != 2*time.Second {
		t.Fatalf("expected 2s backoff, got %s", cfg.Download.RetryBackoff)
	}
	if cfg.Mux.Mode != MuxFFmpeg {
		t.Fatalf("expected ffmpeg mux, got %q", cfg.Mux.Mode)
	}
	if cfg.Download.ScratchDir == "" {
		t.Fatalf("expected scratch dir to fall back to the system temp dir")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
download:
  out_dir: /srv/media
  concurrency: 4
  failure_policy: partial
  retry_backoff: 250ms
http:
  timeout: 5s
mux:
  mode: concat
  extension: .ts
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HLSGET_DOWNLOAD_CONCURRENCY", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Download.OutDir != "/srv/media" {
		t.Errorf("out_dir = %q", cfg.Download.OutDir)
	}
	if cfg.Download.Concurrency != 6 {
		t.Errorf("expected env override to win, got %d", cfg.Download.Concurrency)
	}
	if cfg.Download.FailurePolicy != PolicyPartial {
		t.Errorf("failure_policy = %q", cfg.Download.FailurePolicy)
	}
	if cfg.Download.RetryBackoff != 250*time.Millisecond {
		t.Errorf("retry_backoff = %s", cfg.Download.RetryBackoff)
	}
	if cfg.Download.RetryMaxBackoff != 8*time.Second {
		t.Errorf("retry_max_backoff = %s", cfg.Download.RetryMaxBackoff)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("http.timeout = %s", cfg.HTTP.Timeout)
	}
	if cfg.Mux.Mode != MuxConcat || cfg.Mux.Extension != "ts" {
		t.Errorf("mux = %+v", cfg.Mux)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero concurrency", func(c *Config) { c.Download.Concurrency = 0 }, true},
		{"unknown policy", func(c *Config) { c.Download.FailurePolicy = "best-effort" }, true},
		{"unknown mux", func(c *Config) { c.Mux.Mode = "gstreamer" }, true},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }, true},
		{"zero attempts normalized", func(c *Config) { c.Download.RetryAttempts = 0 }, false},
		{"extension with dot", func(c *Config) { c.Mux.Extension = ".mkv" }, false},
		{"extension with path", func(c *Config) { c.Mux.Extension = "../../etc/x" }, true},
		{"extension with slash", func(c *Config) { c.Mux.Extension = "mp4/x" }, true},
		{"extension too long", func(c *Config) { c.Mux.Extension = "mpeg4ts" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
