package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendRedis {
		t.Fatalf("expected default backend redis, got %q", cfg.Store.Backend)
	}
	if cfg.Redis.JobTTL != 48*time.Hour || cfg.Redis.ResultsTTL != 48*time.Hour {
		t.Fatalf("expected 48h TTLs, got %v/%v", cfg.Redis.JobTTL, cfg.Redis.ResultsTTL)
	}
	if cfg.Crawler.MaxConcurrency != 5 || cfg.Crawler.DefaultMaxRequests != 100 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.MaxLinksPerPage != 3 {
		t.Fatalf("expected max_links_per_page 3, got %d", cfg.Crawler.MaxLinksPerPage)
	}
	if cfg.Janitor.Interval != 12*time.Hour || cfg.Janitor.Retention != 48*time.Hour {
		t.Fatalf("unexpected janitor defaults: %+v", cfg.Janitor)
	}
	if cfg.Worker.DequeueTimeout != 5*time.Second {
		t.Fatalf("expected dequeue timeout 5s, got %v", cfg.Worker.DequeueTimeout)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
store:
  backend: memory
crawler:
  max_concurrency: 8
  max_requests_per_minute: 60
  default_max_requests: 50
  max_links_per_page: 5
  page_timeout: 15s
  user_agent: test-agent
headless:
  enabled: true
  max_parallel: 2
  nav_timeout: 10s
  min_text_bytes: 512
jobs:
  max_urls_per_request: 20
worker:
  idle_backoff: 1s
  dequeue_timeout: 2s
janitor:
  interval: 1h
  retention: 24h
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Store.Backend)
	}
	if cfg.Crawler.MaxConcurrency != 8 || cfg.Crawler.UserAgent != "test-agent" {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if !cfg.Headless.Enabled || cfg.Headless.MinTextBytes != 512 {
		t.Fatalf("expected headless overrides to apply: %+v", cfg.Headless)
	}
	if cfg.Jobs.MaxURLsPerRequest != 20 {
		t.Fatalf("expected max_urls_per_request 20, got %d", cfg.Jobs.MaxURLsPerRequest)
	}
	if cfg.Worker.IdleBackoff != time.Second || cfg.Worker.DequeueTimeout != 2*time.Second {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Worker)
	}
	if cfg.Janitor.Retention != 24*time.Hour {
		t.Fatalf("expected retention 24h, got %v", cfg.Janitor.Retention)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging disabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad backend",
			yaml:    "store:\n  backend: postgres\n",
			wantErr: "store.backend",
		},
		{
			name:    "zero port",
			yaml:    "server:\n  port: 0\n",
			wantErr: "server.port",
		},
		{
			name:    "missing redis addr",
			yaml:    "redis:\n  addr: \"\"\n",
			wantErr: "redis.addr",
		},
		{
			name:    "headless without parallelism",
			yaml:    "headless:\n  enabled: true\n  max_parallel: 0\n",
			wantErr: "headless.max_parallel",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
