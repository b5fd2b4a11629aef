package cache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/redis"
)

const (
	keySeparator = ":"
	keySegment   = "nid"
)

// Redis is a ResolutionCache stored in Redis, shared across processes.
// Keys are <prefix>:<entity>:nid:<xxhash of encoded tuple>; the stored entry keeps
// the encoded tuple so hash collisions read as misses.
type Redis struct {
	manager *redis.Manager
	ttl     time.Duration
	logger  *slog.Logger
}

type redisEntry struct {
	Key []byte             `msgpack:"k"`
	ID  msgpack.RawMessage `msgpack:"i"`
}

// RedisOption configures a Redis cache
type RedisOption func(*Redis)

// WithLogger sets the logger used for hit/miss/invalidation logging
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedis creates a Redis-backed resolution cache.
// ttl of 0 falls back to the manager's DefaultTTL.
func NewRedis(manager *redis.Manager, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl == 0 {
		ttl = manager.Config().DefaultTTL
	}
	r := &Redis{
		manager: manager,
		ttl:     ttl,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) Get(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple) (any, bool, error) {
	encoded, err := tuple.Encode()
	if err != nil {
		return nil, false, err
	}

	data, err := r.manager.Get(ctx, r.key(m, encoded))
	if redis.IsKeyNotFound(err) || redis.IsCacheDisabled(err) {
		r.logMiss(m, tuple)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	id, ok, err := r.decode(m, encoded, data)
	if err != nil || !ok {
		r.logMiss(m, tuple)
		return nil, false, err
	}
	if r.manager.Config().Logging.LogCacheHits {
		r.logger.Debug("natural-id cache hit", "entity", m.EntityName(), "natural_id", tuple.String())
	}
	return id, true, nil
}

// GetMany looks up several tuples in one round trip. Misses are nil.
func (r *Redis) GetMany(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	encoded := make([][]byte, len(tuples))
	keys := make([]string, len(tuples))
	for i, tuple := range tuples {
		enc, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
		keys[i] = r.key(m, enc)
	}

	ids := make([]any, len(tuples))
	values, err := r.manager.MGet(ctx, keys)
	if redis.IsCacheDisabled(err) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}

	for i, data := range values {
		if data == nil {
			continue
		}
		id, ok, err := r.decode(m, encoded[i], data)
		if err != nil {
			return nil, err
		}
		if ok {
			ids[i] = id
		}
	}
	return ids, nil
}

func (r *Redis) Put(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple, id any) error {
	encoded, err := tuple.Encode()
	if err != nil {
		return err
	}
	rawID, err := msgpack.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identifier %v: %w", id, err)
	}
	data, err := msgpack.Marshal(&redisEntry{Key: encoded, ID: rawID})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = r.manager.SetWithTTL(ctx, r.key(m, encoded), data, r.ttl)
	if redis.IsCacheDisabled(err) {
		return nil
	}
	return err
}

func (r *Redis) Invalidate(ctx context.Context, m *naturalid.Mapping, tuple naturalid.Tuple) error {
	encoded, err := tuple.Encode()
	if err != nil {
		return err
	}
	err = r.manager.Delete(ctx, r.key(m, encoded))
	if redis.IsCacheDisabled(err) {
		return nil
	}
	if err == nil && r.manager.Config().Logging.LogInvalidations {
		r.logger.Debug("natural-id cache entry invalidated", "entity", m.EntityName(), "natural_id", tuple.String())
	}
	return err
}

func (r *Redis) Clear(ctx context.Context, m *naturalid.Mapping) error {
	err := r.manager.InvalidatePattern(ctx, r.regionPrefix(m)+"*")
	if redis.IsCacheDisabled(err) {
		return nil
	}
	return err
}

func (r *Redis) regionPrefix(m *naturalid.Mapping) string {
	return r.manager.Config().GetKeyPrefix() + keySeparator + m.EntityName() + keySeparator + keySegment + keySeparator
}

func (r *Redis) key(m *naturalid.Mapping, encoded []byte) string {
	return fmt.Sprintf("%s%016x", r.regionPrefix(m), xxhash.Sum64(encoded))
}

func (r *Redis) decode(m *naturalid.Mapping, encoded, data []byte) (any, bool, error) {
	var entry redisEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry for %s: %w", m.EntityName(), err)
	}
	if !bytes.Equal(entry.Key, encoded) {
		return nil, false, nil
	}

	if m.IDType() == nil {
		var id any
		if err := msgpack.Unmarshal(entry.ID, &id); err != nil {
			return nil, false, fmt.Errorf("decode identifier for %s: %w", m.EntityName(), err)
		}
		return id, true, nil
	}

	ptr := reflect.New(m.IDType())
	if err := msgpack.Unmarshal(entry.ID, ptr.Interface()); err != nil {
		return nil, false, fmt.Errorf("decode identifier for %s: %w", m.EntityName(), err)
	}
	return ptr.Elem().Interface(), true, nil
}

func (r *Redis) logMiss(m *naturalid.Mapping, tuple naturalid.Tuple) {
	if r.manager.Config().Logging.LogCacheMisses {
		r.logger.Debug("natural-id cache miss", "entity", m.EntityName(), "natural_id", tuple.String())
	}
}
