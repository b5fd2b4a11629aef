// Package cache provides the cross-session natural-id resolution cache:
// a per-entity-type mapping from natural-id tuple to primary key.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/redis"
)

// ResolutionCache maps natural-id tuples to primary keys, namespaced per entity type.
// Implementations must be safe for concurrent use; Put replaces any existing entry.
type ResolutionCache interface {
	// Get returns the cached primary key for the tuple; found is false on a miss
	Get(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple) (id any, found bool, err error)

	// Put inserts or replaces the entry for the tuple
	Put(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple, id any) error

	// Invalidate removes the entry for the tuple, if any
	Invalidate(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple) error

	// Clear removes every entry of the mapping's entity type
	Clear(ctx context.Context, m *naturalid.Mapping) error
}

// MultiGetter is implemented by caches that can look up several tuples in one round trip
type MultiGetter interface {
	GetMany(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error)
}

// GetMany looks up every tuple, using MultiGetter when the cache supports it.
// The result is positional; nil marks a miss.
func GetMany(ctx context.Context, c ResolutionCache, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	if mg, ok := c.(MultiGetter); ok {
		return mg.GetMany(ctx, m, tuples)
	}

	ids := make([]any, len(tuples))
	for i, tuple := range tuples {
		id, found, err := c.Get(ctx, m, tuple)
		if err != nil {
			return nil, err
		}
		if found {
			ids[i] = id
		}
	}
	return ids, nil
}

// Backend selects a ResolutionCache implementation
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendNone   Backend = "none"
)

// Config holds resolution cache configuration
type Config struct {
	Backend    Backend       `json:"backend" yaml:"backend"`         // memory, redis, none
	TTL        time.Duration `json:"ttl" yaml:"ttl"`                 // 0 keeps entries until invalidated
	MaxEntries int           `json:"max_entries" yaml:"max_entries"` // memory backend only, per entity type; 0 is unbounded
}

// DefaultConfig returns an in-memory cache configuration
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
	}
}

// Validate checks if the cache configuration is valid
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendNone, "":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries cannot be negative")
	}
	return nil
}

// New builds the configured cache. The redis manager is required for the redis backend.
func New(cfg Config, manager *redis.Manager) (ResolutionCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendNone:
		return None{}, nil
	case BackendRedis:
		if manager == nil {
			return nil, fmt.Errorf("redis backend requires a redis manager")
		}
		return NewRedis(manager, cfg.TTL), nil
	default:
		return NewMemory(WithTTL(cfg.TTL), WithMaxEntries(cfg.MaxEntries)), nil
	}
}

// None is a ResolutionCache that never stores anything
type None struct{}

func (None) Get(context.Context, *naturalid.Mapping, naturalid.Tuple) (any, bool, error) {
	return nil, false, nil
}

func (None) Put(context.Context, *naturalid.Mapping, naturalid.Tuple, any) error {
	return nil
}

func (None) Invalidate(context.Context, *naturalid.Mapping, naturalid.Tuple) error {
	return nil
}

func (None) Clear(context.Context, *naturalid.Mapping) error {
	return nil
}
