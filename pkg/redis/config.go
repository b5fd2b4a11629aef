package redis

import (
	"errors"
	"fmt"
	"time"
)

// Config holds Redis configuration for the natural-id resolution cache
type Config struct {
	// Cache Behaviour
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"` // 0 keeps entries until invalidated
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix"`   // Default: natid4go

	// Redis Connection
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	Database int    `json:"database" yaml:"database"`

	// Connection Pool
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns"`
	MaxConnAge   time.Duration `json:"max_conn_age" yaml:"max_conn_age"`
	PoolTimeout  time.Duration `json:"pool_timeout" yaml:"pool_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// Performance
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// Clustering (for Redis Cluster)
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`

	// Cache Metrics
	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics"`

	// Cache Logging
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ClusterConfig for Redis Cluster setup
type ClusterConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
}

// LoggingConfig controls Redis cache logging behavior
type LoggingConfig struct {
	LogCacheHits     bool `json:"log_cache_hits" yaml:"log_cache_hits"`
	LogCacheMisses   bool `json:"log_cache_misses" yaml:"log_cache_misses"`
	LogInvalidations bool `json:"log_invalidations" yaml:"log_invalidations"`
}

// DefaultKeyPrefix namespaces every key written by this library
const DefaultKeyPrefix = "natid4go"

// DefaultConfig returns a single-node configuration on localhost:6379.
// Only invalidations are logged by default.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		DefaultTTL:   time.Hour,
		KeyPrefix:    DefaultKeyPrefix,
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 3,
		MaxConnAge:   time.Hour,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,

		EnableMetrics: true,
		Logging:       LoggingConfig{LogInvalidations: true},
	}
}

// Validate reports every problem with an enabled configuration at once
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if !c.IsClusterMode() {
		if c.Host == "" {
			errs = append(errs, errors.New("redis host is required when cache is enabled"))
		}
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("redis port must be between 1 and 65535, got %d", c.Port))
		}
	}
	if c.DefaultTTL < 0 {
		errs = append(errs, errors.New("default_ttl cannot be negative"))
	}
	if c.PoolSize < 1 {
		errs = append(errs, errors.New("pool_size must be at least 1"))
	}
	if c.MinIdleConns > c.PoolSize {
		errs = append(errs, fmt.Errorf("min_idle_conns (%d) exceeds pool_size (%d)", c.MinIdleConns, c.PoolSize))
	}
	return errors.Join(errs...)
}

// GetAddr returns the Redis connection address
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsClusterMode returns true if Redis cluster is enabled
func (c *Config) IsClusterMode() bool {
	return c.Cluster.Enabled && len(c.Cluster.Addresses) > 0
}

// GetKeyPrefix returns the configured key prefix or the default
func (c *Config) GetKeyPrefix() string {
	if c.KeyPrefix == "" {
		return DefaultKeyPrefix
	}
	return c.KeyPrefix
}
