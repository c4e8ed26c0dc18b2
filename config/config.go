package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Registry   RegistryConfig   `yaml:"registry"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	ShutdownSeconds int     `yaml:"shutdown_seconds"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	// SlowQueryMillis is the threshold above which SQL statements are logged at warn.
	SlowQueryMillis int `yaml:"slow_query_millis"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" | "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LedgerConfig tunes the access ledger.
type LedgerConfig struct {
	RequireKnownVehicle bool           `yaml:"require_known_vehicle"`
	StatusHistorySize   int            `yaml:"status_history_size"`
	Timezone            string         `yaml:"timezone"`
	Location            *time.Location `yaml:"-"`
}

// RegistryConfig configures the vehicle registry read model and its sync job.
type RegistryConfig struct {
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	Sync            RegistrySync  `yaml:"sync"`
	CacheTTL        time.Duration `yaml:"-"`
}

// RegistrySync describes how vehicles are pulled from the upstream vehicle service.
type RegistrySync struct {
	Enabled         bool              `yaml:"enabled"`
	URL             string            `yaml:"url"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"`
	PageSize        int               `yaml:"page_size"`
	HTTPProxy       string            `yaml:"http_proxy"`
	Headers         map[string]string `yaml:"headers"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// Load reads the configuration from the given path. A .env file in the
// working directory is loaded first so PARKING_* overrides can live there.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PARKING_DATABASE_DRIVER")); v != "" {
		cfg.Database.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("PARKING_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PARKING_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.SlowQueryMillis <= 0 {
		cfg.Log.SlowQueryMillis = 200
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if cfg.Ledger.StatusHistorySize <= 0 {
		cfg.Ledger.StatusHistorySize = 5
	}
	if cfg.Ledger.Timezone == "" {
		cfg.Ledger.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		return fmt.Errorf("ledger.timezone %q: %w", cfg.Ledger.Timezone, err)
	}
	cfg.Ledger.Location = loc

	if cfg.Registry.CacheTTLSeconds <= 0 {
		cfg.Registry.CacheTTLSeconds = 60
	}
	cfg.Registry.CacheTTL = time.Duration(cfg.Registry.CacheTTLSeconds) * time.Second
	if cfg.Registry.Sync.IntervalSeconds <= 0 {
		cfg.Registry.Sync.IntervalSeconds = 300
	}
	cfg.Registry.Sync.Interval = time.Duration(cfg.Registry.Sync.IntervalSeconds) * time.Second
	if cfg.Registry.Sync.PageSize <= 0 {
		cfg.Registry.Sync.PageSize = 100
	}
	if cfg.Registry.Sync.Enabled && cfg.Registry.Sync.URL == "" {
		return fmt.Errorf("registry.sync.url is required when the sync is enabled")
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
	return nil
}
