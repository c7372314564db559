// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Application ApplicationConfig `mapstructure:"application"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Riot        RiotConfig        `mapstructure:"riot"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Ranking     RankingConfig     `mapstructure:"ranking"`
}

// ApplicationConfig describes the deployment for telemetry resources.
type ApplicationConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	Version       string `mapstructure:"version"`
	ProjectID     string `mapstructure:"project_id"`
	ProjectNumber string `mapstructure:"project_number"`
	Region        string `mapstructure:"region"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RiotConfig configures the upstream match API client.
type RiotConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxInFlight    int     `mapstructure:"max_in_flight"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// CrawlerConfig governs the two crawl cycles.
type CrawlerConfig struct {
	SeedUserIDs          []string `mapstructure:"seed_user_ids"`
	MatchPageSize        int      `mapstructure:"match_page_size"`
	MaxRequestsPerWindow int      `mapstructure:"max_requests_per_window"`
	BatchSize            int      `mapstructure:"batch_size"`
	BatchPauseMs         int      `mapstructure:"batch_pause_ms"`
	UserTTLHours         int      `mapstructure:"user_ttl_hours"`
	ClearStaleSets       bool     `mapstructure:"clear_stale_sets"`
	EventTopic           string   `mapstructure:"event_topic"`
}

// QueueConfig selects the identifier queue backend.
type QueueConfig struct {
	Backend     string      `mapstructure:"backend"`
	UserPrefix  string      `mapstructure:"user_prefix"`
	MatchPrefix string      `mapstructure:"match_prefix"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the document store and optional blob archive.
type StorageConfig struct {
	Backend string        `mapstructure:"backend"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ArchiveConfig configures the blob copy of every saved document.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig drives the periodic cycle trigger.
type SchedulerConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	IntervalSeconds   int  `mapstructure:"interval_seconds"`
	Retries           int  `mapstructure:"retries"`
	RetryDelaySeconds int  `mapstructure:"retry_delay_seconds"`
}

// ProgressConfig tunes the progress hub and its sinks.
type ProgressConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	LogEvents      bool `mapstructure:"log_events"`
}

// RankingConfig points at a trained model bundle.
type RankingConfig struct {
	ModelDir string `mapstructure:"model_dir"`
}

// Load builds a Config from .env, disk, and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ARAM")
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
	if cfg.Riot.APIKey == "" {
		cfg.Riot.APIKey = os.Getenv("RIOT_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.service_name", "aram-crawler")
	v.SetDefault("application.version", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("logging.development", true)
	v.SetDefault("riot.api_key", "")
	v.SetDefault("riot.base_url", "https://asia.api.riotgames.com")
	v.SetDefault("riot.timeout_seconds", 30)
	v.SetDefault("riot.max_in_flight", 64)
	v.SetDefault("riot.rate_limit_rps", 0)
	v.SetDefault("riot.rate_limit_burst", 1)
	v.SetDefault("crawler.match_page_size", 100)
	v.SetDefault("crawler.max_requests_per_window", 2000)
	v.SetDefault("crawler.batch_size", 200)
	v.SetDefault("crawler.batch_pause_ms", 1000)
	v.SetDefault("crawler.user_ttl_hours", 6)
	v.SetDefault("crawler.clear_stale_sets", false)
	v.SetDefault("crawler.event_topic", "match-events")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.user_prefix", "user_id")
	v.SetDefault("queue.match_prefix", "match_id")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.archive.backend", "")
	v.SetDefault("storage.archive.prefix", "matches")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_seconds", 120)
	v.SetDefault("scheduler.retries", 1)
	v.SetDefault("scheduler.retry_delay_seconds", 300)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait_ms", 500)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Riot.TimeoutSeconds <= 0 {
		return fmt.Errorf("riot.timeout_seconds must be > 0")
	}
	if c.Riot.MaxInFlight <= 0 {
		return fmt.Errorf("riot.max_in_flight must be > 0")
	}
	if c.Crawler.MatchPageSize <= 0 || c.Crawler.MatchPageSize > 100 {
		return fmt.Errorf("crawler.match_page_size must be between 1 and 100")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.MaxRequestsPerWindow < 2 {
		return fmt.Errorf("crawler.max_requests_per_window must be >= 2")
	}
	switch c.Queue.Backend {
	case "memory":
	case "redis":
		if c.Queue.Redis.Addr == "" {
			return fmt.Errorf("queue.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported queue.backend %q", c.Queue.Backend)
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.Storage.Backend)
	}
	switch c.Storage.Archive.Backend {
	case "", "memory":
	case "gcs":
		if c.Storage.Archive.GCSBucket == "" {
			return fmt.Errorf("storage.archive.gcs_bucket is required for the gcs archive")
		}
	case "local":
		if c.Storage.Archive.LocalDir == "" {
			return fmt.Errorf("storage.archive.local_dir is required for the local archive")
		}
	default:
		return fmt.Errorf("unsupported storage.archive.backend %q", c.Storage.Archive.Backend)
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0 when the scheduler is enabled")
	}
	if c.Scheduler.Retries < 0 {
		return fmt.Errorf("scheduler.retries must be >= 0")
	}
	return nil
}

// RiotTimeout returns the per-request upstream timeout.
func (c Config) RiotTimeout() time.Duration {
	return time.Duration(c.Riot.TimeoutSeconds) * time.Second
}

// BatchPause returns the sleep between match batches.
func (c Config) BatchPause() time.Duration {
	return time.Duration(c.Crawler.BatchPauseMs) * time.Millisecond
}

// UserTTL returns how long a discovered participant stays suppressed.
func (c Config) UserTTL() time.Duration {
	return time.Duration(c.Crawler.UserTTLHours) * time.Hour
}

// SchedulerInterval returns the cycle period.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// SchedulerRetryDelay returns the wait before a failed cycle is retried.
func (c Config) SchedulerRetryDelay() time.Duration {
	return time.Duration(c.Scheduler.RetryDelaySeconds) * time.Second
}
