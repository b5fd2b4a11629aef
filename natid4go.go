// Package natid4go resolves natural ids (business keys) of GORM entities to primary keys
// and loaded entities, through a shared resolution cache backed by memory or Redis.
package natid4go

import (
	"github.com/ammar0144/natid4go/pkg/cache"
	"github.com/ammar0144/natid4go/pkg/config"
	"github.com/ammar0144/natid4go/pkg/db"
	"github.com/ammar0144/natid4go/pkg/loader"
	"github.com/ammar0144/natid4go/pkg/metadata"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/redis"
	"github.com/ammar0144/natid4go/pkg/repository"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

// Config represents the aggregated natid4go configuration
type Config = config.Config

// DBConfig represents database configuration
type DBConfig = db.Config

// RedisConfig represents Redis configuration
type RedisConfig = redis.Config

// Mapping is the natural-id descriptor of an entity type
type Mapping = naturalid.Mapping

// Session is a caller's unit of work
type Session = session.Session

// LockOptions control locking when entities are materialized
type LockOptions = store.LockOptions

// Repository provides natural-id load access and queued writes for T
type Repository[T any] interface {
	repository.Repository[T]
}

// LoadConfig loads configuration from a YAML file and optional .env files
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	return config.Load(path, envFiles...)
}

// NewManager creates a new database manager
func NewManager(config *DBConfig) (*db.Manager, error) {
	return db.NewManager(config)
}

// NewRedisManager creates a new Redis manager
func NewRedisManager(config *RedisConfig) (*redis.Manager, error) {
	return redis.NewManager(config)
}

// NewCache builds the configured resolution cache.
// redisManager is only required for the redis backend.
func NewCache(cfg cache.Config, redisManager *redis.Manager) (cache.ResolutionCache, error) {
	return cache.New(cfg, redisManager)
}

// NewSession opens a new unit of work
func NewSession(opts ...session.Option) *Session {
	return session.New(opts...)
}

// NewRepository creates a GORM-backed repository for model T. The natural id is read
// from `natid` struct tags; the cache is shared with every other repository using it.
func NewRepository[T any](dbManager *db.Manager, c cache.ResolutionCache, opts ...resolver.Option) (Repository[T], error) {
	m, err := metadata.FromModel[T]()
	if err != nil {
		return nil, err
	}
	s, err := store.NewGorm[T](dbManager, m)
	if err != nil {
		return nil, err
	}
	return newRepository[T](m, s, resolver.New(c, s, opts...))
}

// NewMemoryRepository creates a repository over an in-memory store, for tests and prototypes
func NewMemoryRepository[T any](c cache.ResolutionCache, opts ...resolver.Option) (Repository[T], error) {
	m, err := metadata.FromModel[T]()
	if err != nil {
		return nil, err
	}
	s := store.NewMemory[T](m)
	return newRepository[T](m, s, resolver.New(c, s, opts...))
}

func newRepository[T any](m *Mapping, s store.Store[T], r *resolver.Resolver) (Repository[T], error) {
	repo, err := repository.New[T](m, s, r)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// CompoundValue builds a name-keyed compound natural id from alternating names and values
func CompoundValue(pairs ...any) map[string]any {
	return loader.CompoundValue(pairs...)
}
