// Package config loads the natid4go configuration from YAML, with optional .env files
// and ${VAR} expansion for secrets.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ammar0144/natid4go/pkg/cache"
	"github.com/ammar0144/natid4go/pkg/db"
	"github.com/ammar0144/natid4go/pkg/redis"
)

// Config aggregates the configuration of every natid4go component
type Config struct {
	// Database configures the MySQL store; nil means no database is used
	Database *db.Config `json:"database" yaml:"database"`

	// Redis configures the Redis manager backing the redis cache backend
	Redis *redis.Config `json:"redis" yaml:"redis"`

	Cache   cache.Config  `json:"cache" yaml:"cache"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// MultiLoadBatchSize caps natural ids per store request in multi-loads; 0 means no cap
	MultiLoadBatchSize int `json:"multi_load_batch_size" yaml:"multi_load_batch_size"`
}

// LoggingConfig controls the application logger
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// Default returns a configuration with an in-memory cache and no external services
func Default() *Config {
	return &Config{
		Cache: cache.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path. envFiles are loaded first (missing ones are skipped)
// without overriding variables already set, then ${VAR} references in the file are expanded.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML over the defaults and validates the result.
// Database and redis sections that are present start from their package defaults.
func Parse(data []byte) (*Config, error) {
	var sections struct {
		Database *yaml.Node `yaml:"database"`
		Redis    *yaml.Node `yaml:"redis"`
	}
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if sections.Database != nil {
		cfg.Database = db.DefaultConfig()
	}
	if sections.Redis != nil {
		cfg.Redis = redis.DefaultConfig()
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every configured section
func (c *Config) Validate() error {
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c.Cache.Backend == cache.BackendRedis && (c.Redis == nil || !c.Redis.Enabled) {
		return fmt.Errorf("cache: redis backend requires an enabled redis section")
	}
	if c.MultiLoadBatchSize < 0 {
		return fmt.Errorf("multi_load_batch_size cannot be negative")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// NewLogger builds a slog logger writing to w (stderr when nil)
func NewLogger(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
