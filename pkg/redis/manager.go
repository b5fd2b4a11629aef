package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatchSize = 100

// Manager owns the Redis client behind the natural-id resolution cache and exposes the
// raw key/value commands the cache is built from
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
}

// NewManager creates a Redis manager from config. No client is created while the
// cache is disabled.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	m := newManager(config)
	if config.Enabled {
		m.client = newClient(config)
	}
	return m, nil
}

// NewManagerWithClient wraps an existing client, e.g. one shared with other components
func NewManagerWithClient(config *Config, client redis.UniversalClient) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	m := newManager(config)
	m.client = client
	return m
}

func newManager(config *Config) *Manager {
	m := &Manager{config: config}
	if config.EnableMetrics {
		m.metrics = NewMetrics()
	}
	return m
}

func newClient(c *Config) redis.UniversalClient {
	if c.IsClusterMode() {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           c.Cluster.Addresses,
			Username:        c.Cluster.Username,
			Password:        c.Cluster.Password,
			PoolSize:        c.PoolSize,
			MinIdleConns:    c.MinIdleConns,
			ConnMaxLifetime: c.MaxConnAge,
			ConnMaxIdleTime: c.IdleTimeout,
			PoolTimeout:     c.PoolTimeout,
			ReadTimeout:     c.ReadTimeout,
			WriteTimeout:    c.WriteTimeout,
			DialTimeout:     c.DialTimeout,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:            c.GetAddr(),
		Password:        c.Password,
		DB:              c.Database,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxLifetime: c.MaxConnAge,
		ConnMaxIdleTime: c.IdleTimeout,
		PoolTimeout:     c.PoolTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		DialTimeout:     c.DialTimeout,
	})
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Ping checks the server. A disabled cache is not an error.
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (m *Manager) ready() error {
	switch {
	case !m.config.Enabled:
		return ErrCacheDisabled
	case m.client == nil:
		return ErrClientNotInitialized
	}
	return nil
}

// observe records the command and wraps a failure as a CommandError
func (m *Manager) observe(op Op, start time.Time, err error) error {
	if m.metrics != nil {
		m.metrics.observe(op, start, err)
	}
	if err == nil {
		return nil
	}
	return &CommandError{Command: op.String(), Err: err}
}

func (m *Manager) lookups(hits, misses int) {
	if m.metrics != nil {
		m.metrics.lookups(hits, misses)
	}
}

// Get returns the value at key, or ErrKeyNotFound
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = m.observe(OpGet, start, nil)
		m.lookups(0, 1)
		return nil, ErrKeyNotFound
	}
	if err := m.observe(OpGet, start, err); err != nil {
		return nil, err
	}
	m.lookups(1, 0)
	return data, nil
}

// MGet returns the values of keys positionally; missing keys yield nil.
// GETs are pipelined so keys may live in different cluster slots.
func (m *Manager) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	start := time.Now()
	pipe := m.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	_, err := pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	if err := m.observe(OpMGet, start, err); err != nil {
		return nil, err
	}

	values := make([][]byte, len(keys))
	hits := 0
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, &CommandError{Command: OpMGet.String(), Err: err}
		}
		values[i] = data
		hits++
	}
	m.lookups(hits, len(keys)-hits)
	return values, nil
}

// Set stores value with the configured default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores value; a zero ttl keeps it until deleted
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.ready(); err != nil {
		return err
	}
	start := time.Now()
	return m.observe(OpSet, start, m.client.Set(ctx, key, value, ttl).Err())
}

// Delete removes key
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.DeleteKeys(ctx, []string{key})
}

// DeleteKeys removes every key in one command
func (m *Manager) DeleteKeys(ctx context.Context, keys []string) error {
	if err := m.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	return m.observe(OpDelete, start, m.client.Del(ctx, keys...).Err())
}

// InvalidatePattern deletes every key matching pattern. It walks the keyspace with
// SCAN, which does not block the server the way KEYS does.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.ready(); err != nil {
		return err
	}

	var cursor uint64
	for {
		start := time.Now()
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err := m.observe(OpScan, start, err); err != nil {
			return fmt.Errorf("invalidate %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			if err := m.DeleteKeys(ctx, batch); err != nil {
				return fmt.Errorf("invalidate %s: %w", pattern, err)
			}
			if m.metrics != nil {
				m.metrics.invalidate(len(batch))
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// GetMetrics returns the current counters; empty when metrics are disabled
func (m *Manager) GetMetrics() MetricsSnapshot {
	if m.metrics == nil {
		return MetricsSnapshot{Ops: map[Op]OpSnapshot{}}
	}
	return m.metrics.Snapshot()
}

// ResetMetrics zeroes every counter
func (m *Manager) ResetMetrics() {
	if m.metrics != nil {
		m.metrics.Reset()
	}
}
