package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sync engine
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Network  NetworkConfig  `mapstructure:"network"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Preload  PreloadConfig  `mapstructure:"preload"`
	Log      LogConfig      `mapstructure:"log"`
}

// APIConfig describes how to reach the backend
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NetworkConfig configures connectivity detection
type NetworkConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"` // 0 disables periodic re-probing
	MaxListeners  int           `mapstructure:"max_listeners"`
}

// DatabaseConfig selects the durable store
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	Path   string `mapstructure:"path"`   // sqlite file
	DSN    string `mapstructure:"dsn"`    // postgres connection string
}

// CacheConfig controls cache lifetime and preload window
type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	LookAhead time.Duration `mapstructure:"lookahead"`
}

// QueueConfig controls delivery of queued requests
type QueueConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// PreloadConfig controls the periodic refresh of the offline working set
type PreloadConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, an optional config file and the environment.
// configFile may be empty.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// defaults always decode
	_ = v.Unmarshal(&config)
	return &config
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be at least 1, got %d", c.Queue.MaxRetries)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.LookAhead < 0 {
		return fmt.Errorf("cache.lookahead must not be negative")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "15s")

	v.SetDefault("network.probe_url", "http://localhost:3000/favicon.ico")
	v.SetDefault("network.probe_timeout", "3s")
	v.SetDefault("network.probe_interval", "30s")
	v.SetDefault("network.max_listeners", 64)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/learnsync.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.lookahead", "168h")

	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.delivery_timeout", "10s")
	v.SetDefault("queue.poll_interval", "2s")

	v.SetDefault("preload.interval", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
