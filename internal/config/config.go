// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable via store.backend.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Store    StoreConfig    `mapstructure:"store"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig holds the durable store connection and expiry policy.
// JobTTL and ResultsTTL are refreshed independently; the reader treats a
// missing job record as job absence even if its results survive.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	JobTTL     time.Duration `mapstructure:"job_ttl"`
	ResultsTTL time.Duration `mapstructure:"results_ttl"`
}

// StoreConfig selects the store/queue backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// CrawlerConfig governs the fetching engine.
type CrawlerConfig struct {
	MaxConcurrency       int           `mapstructure:"max_concurrency"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	DefaultMaxRequests   int           `mapstructure:"default_max_requests"`
	MaxLinksPerPage      int           `mapstructure:"max_links_per_page"`
	PageTimeout          time.Duration `mapstructure:"page_timeout"`
	UserAgent            string        `mapstructure:"user_agent"`
}

// HeadlessConfig configures the optional headless rendering step.
type HeadlessConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	NavTimeout   time.Duration `mapstructure:"nav_timeout"`
	MinTextBytes int           `mapstructure:"min_text_bytes"`
}

// JobsConfig bounds producer requests.
type JobsConfig struct {
	MaxURLsPerRequest int `mapstructure:"max_urls_per_request"`
}

// WorkerConfig controls the worker loop timing.
type WorkerConfig struct {
	IdleBackoff    time.Duration `mapstructure:"idle_backoff"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
}

// JanitorConfig controls the expired-job sweep.
type JanitorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.job_ttl", "48h")
	v.SetDefault("redis.results_ttl", "48h")
	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("crawler.max_concurrency", 5)
	v.SetDefault("crawler.max_requests_per_minute", 30)
	v.SetDefault("crawler.default_max_requests", 100)
	v.SetDefault("crawler.max_links_per_page", 3)
	v.SetDefault("crawler.page_timeout", "30s")
	v.SetDefault("crawler.user_agent", "crawld/1.0 (+https://github.com/crawlkit/crawld)")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 3)
	v.SetDefault("headless.nav_timeout", "25s")
	v.SetDefault("headless.min_text_bytes", 200)
	v.SetDefault("jobs.max_urls_per_request", 1000)
	v.SetDefault("worker.idle_backoff", "5s")
	v.SetDefault("worker.dequeue_timeout", "5s")
	v.SetDefault("janitor.interval", "12h")
	v.SetDefault("janitor.retention", "48h")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Backend != BackendRedis && c.Store.Backend != BackendMemory {
		return fmt.Errorf("store.backend must be %q or %q", BackendRedis, BackendMemory)
	}
	if c.Store.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when store.backend is redis")
	}
	if c.Redis.JobTTL <= 0 || c.Redis.ResultsTTL <= 0 {
		return fmt.Errorf("redis.job_ttl and redis.results_ttl must be > 0")
	}
	if c.Crawler.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.max_concurrency must be > 0")
	}
	if c.Crawler.DefaultMaxRequests <= 0 {
		return fmt.Errorf("crawler.default_max_requests must be > 0")
	}
	if c.Crawler.PageTimeout <= 0 {
		return fmt.Errorf("crawler.page_timeout must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Jobs.MaxURLsPerRequest <= 0 {
		return fmt.Errorf("jobs.max_urls_per_request must be > 0")
	}
	if c.Janitor.Interval <= 0 || c.Janitor.Retention <= 0 {
		return fmt.Errorf("janitor.interval and janitor.retention must be > 0")
	}
	return nil
}
