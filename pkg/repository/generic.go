package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ammar0144/natid4go/pkg/loader"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

var errNilSession = errors.New("session cannot be nil")

// GenericRepository opens natural-id load accesses for T and queues its writes in a
// session, invalidating natural-id cache entries when changes are flushed
type GenericRepository[T any] struct {
	mapping  *naturalid.Mapping
	store    store.Store[T]
	resolver *resolver.Resolver
}

// New creates a repository for entities described by m, stored in s and resolved by r
func New[T any](m *naturalid.Mapping, s store.Store[T], r *resolver.Resolver) (*GenericRepository[T], error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mapping cannot be nil", naturalid.ErrInvalidMapping)
	}
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if r == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	return &GenericRepository[T]{mapping: m, store: s, resolver: r}, nil
}

// Mapping returns the natural-id descriptor of T
func (r *GenericRepository[T]) Mapping() *naturalid.Mapping {
	return r.mapping
}

// ============================================================================
// LOAD ACCESS
// ============================================================================

// ByNaturalID opens an attribute-by-attribute load access
func (r *GenericRepository[T]) ByNaturalID(sess *session.Session) *loader.LoadAccess[T] {
	return loader.NewLoadAccess[T](sess, r.mapping, r.resolver, r.store)
}

// BySimpleNaturalID opens a single-value load access
func (r *GenericRepository[T]) BySimpleNaturalID(sess *session.Session) *loader.SimpleLoadAccess[T] {
	return loader.NewSimpleLoadAccess[T](sess, r.mapping, r.resolver, r.store)
}

// ByMultipleNaturalID opens a batched load access
func (r *GenericRepository[T]) ByMultipleNaturalID(sess *session.Session) *loader.MultiLoadAccess[T] {
	return loader.NewMultiLoadAccess[T](sess, r.mapping, r.resolver, r.store)
}

// ============================================================================
// WRITE OPERATIONS - Queued, Cache Invalidation on Flush
// ============================================================================

// Persist queues an insert of entity
func (r *GenericRepository[T]) Persist(sess *session.Session, entity *T) error {
	if sess == nil {
		return errNilSession
	}
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	if _, err := r.mapping.Extract(entity); err != nil {
		return err
	}

	sess.Enqueue("persist "+r.mapping.EntityName(), func(ctx context.Context) error {
		if err := r.store.Insert(ctx, entity); err != nil {
			return err
		}
		r.resolver.Advance()
		return nil
	})
	return nil
}

// Update queues an update of entity. On flush the stored natural id is compared with
// the new one: a change fails with ErrImmutableNaturalID unless the mapping is mutable,
// and otherwise invalidates the cache entries of both values.
func (r *GenericRepository[T]) Update(sess *session.Session, entity *T) error {
	if sess == nil {
		return errNilSession
	}
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	id, err := r.mapping.ExtractID(entity)
	if err != nil {
		return err
	}

	sess.Enqueue("update "+r.mapping.EntityName(), func(ctx context.Context) error {
		current, err := r.current(ctx, id)
		if err != nil {
			return err
		}
		next, err := r.mapping.Extract(entity)
		if err != nil {
			return err
		}

		var stale naturalid.Tuple
		if current != nil {
			previous, err := r.mapping.Extract(current)
			if err != nil {
				return err
			}
			if !previous.Equal(next) {
				if !r.mapping.Mutable() {
					return fmt.Errorf("%w: %s [%v] changed from %s to %s",
						naturalid.ErrImmutableNaturalID, r.mapping.EntityName(), id, previous, next)
				}
				stale = previous
			}
		}

		if err := r.store.Update(ctx, entity); err != nil {
			return err
		}
		r.resolver.Advance()

		// the new value may have been resolved as absent, or owned by a removed row
		r.invalidate(ctx, sess.Logger(), stale, next)
		return nil
	})
	return nil
}

// Remove queues a delete of entity and invalidates its natural id on flush
func (r *GenericRepository[T]) Remove(sess *session.Session, entity *T) error {
	if sess == nil {
		return errNilSession
	}
	if entity == nil {
		return fmt.Errorf("entity cannot be nil")
	}
	id, err := r.mapping.ExtractID(entity)
	if err != nil {
		return err
	}

	sess.Enqueue("remove "+r.mapping.EntityName(), func(ctx context.Context) error {
		// invalidate what the store holds, which may differ from a stale entity
		current, err := r.current(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			current = entity
		}
		tuple, err := r.mapping.Extract(current)
		if err != nil {
			return err
		}

		if err := r.store.Delete(ctx, entity); err != nil {
			return err
		}
		r.resolver.Advance()
		r.invalidate(ctx, sess.Logger(), tuple)
		return nil
	})
	return nil
}

// Flush applies every change queued in sess
func (r *GenericRepository[T]) Flush(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errNilSession
	}
	return sess.FlushPendingChanges(ctx)
}

// ============================================================================
// CACHE MANAGEMENT
// ============================================================================

// EvictNaturalIDCache drops every cached resolution of T
func (r *GenericRepository[T]) EvictNaturalIDCache(ctx context.Context) error {
	r.resolver.Advance()
	return r.resolver.Cache().Clear(ctx, r.mapping)
}

// current loads the stored row behind id; nil when there is none
func (r *GenericRepository[T]) current(ctx context.Context, id any) (*T, error) {
	entities, err := r.store.Materialize(ctx, r.mapping, []any{id}, store.LockOptions{})
	if err != nil {
		return nil, err
	}
	if len(entities) != 1 {
		return nil, fmt.Errorf("materialize %s: store returned %d entities for 1 identifier", r.mapping.EntityName(), len(entities))
	}
	return entities[0], nil
}

// invalidate removes cached resolutions (ignore errors - best effort)
func (r *GenericRepository[T]) invalidate(ctx context.Context, logger *slog.Logger, tuples ...naturalid.Tuple) {
	if !r.mapping.Cacheable() {
		return
	}
	c := r.resolver.Cache()
	for _, tuple := range tuples {
		if tuple == nil {
			continue
		}
		if err := c.Invalidate(ctx, r.mapping, tuple); err != nil {
			logger.WarnContext(ctx, "natural-id cache invalidation failed",
				"entity", r.mapping.EntityName(), "natural_id", tuple.String(), "error", err)
			continue
		}
		logger.DebugContext(ctx, "natural-id cache invalidated",
			"entity", r.mapping.EntityName(), "natural_id", tuple.String())
	}
}
