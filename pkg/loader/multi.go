package loader

import (
	"context"
	"fmt"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

// MultiLoadAccess loads many entities of one type by natural id in a batch
type MultiLoadAccess[T any] struct {
	access[T]
	ordered   bool
	batchSize int
}

// NewMultiLoadAccess opens a batched load access for the entity described by m
func NewMultiLoadAccess[T any](sess *session.Session, m *naturalid.Mapping, r *resolver.Resolver, l store.Loader[T]) *MultiLoadAccess[T] {
	return &MultiLoadAccess[T]{
		access:  newAccess(sess, m, r, l),
		ordered: true,
	}
}

// With sets the lock options used when entities are materialized
func (a *MultiLoadAccess[T]) With(lock store.LockOptions) *MultiLoadAccess[T] {
	a.lock = lock
	return a
}

// SetSynchronizationEnabled controls whether pending session changes are flushed
// before the lookup (default true)
func (a *MultiLoadAccess[T]) SetSynchronizationEnabled(enabled bool) *MultiLoadAccess[T] {
	a.synchronize = enabled
	return a
}

// SetCacheBypass skips reading the resolution cache
func (a *MultiLoadAccess[T]) SetCacheBypass(bypass bool) *MultiLoadAccess[T] {
	a.cacheBypass = bypass
	return a
}

// EnableOrderedReturn controls the result layout (default true). Ordered results match
// the inputs position for position, with nil for absent entities; unordered results
// hold only the entities found.
func (a *MultiLoadAccess[T]) EnableOrderedReturn(enabled bool) *MultiLoadAccess[T] {
	a.ordered = enabled
	return a
}

// WithBatchSize caps the natural ids sent to the store per request; 0 means no cap
func (a *MultiLoadAccess[T]) WithBatchSize(size int) *MultiLoadAccess[T] {
	a.batchSize = size
	return a
}

// MultiLoad resolves and materializes every input. Each input is one full natural id:
// a scalar for simple ids, or an array, slice or name-keyed map for compound ones.
// A malformed input fails the whole call before the store is touched.
func (a *MultiLoadAccess[T]) MultiLoad(ctx context.Context, inputs ...any) ([]*T, error) {
	if err := a.synchronizeSession(ctx); err != nil {
		return nil, err
	}

	tuples := make([]naturalid.Tuple, len(inputs))
	for i, raw := range inputs {
		tuple, err := naturalid.Normalize(a.mapping, raw)
		if err != nil {
			return nil, fmt.Errorf("multi-load %s input %d: %w", a.mapping.EntityName(), i, err)
		}
		tuples[i] = tuple
	}

	ids, err := a.resolver.ResolveBatch(ctx, a.session, a.mapping, tuples, resolver.BatchOptions{
		CacheBypass: a.cacheBypass,
		BatchSize:   a.batchSize,
	})
	if err != nil {
		return nil, err
	}

	// materialize every resolved id in one request
	var found []any
	var positions []int
	for i, id := range ids {
		if id != nil {
			found = append(found, id)
			positions = append(positions, i)
		}
	}
	var entities []*T
	if len(found) > 0 {
		entities, err = a.materialize(ctx, found)
		if err != nil {
			return nil, err
		}
	}

	if !a.ordered {
		out := make([]*T, 0, len(entities))
		for _, entity := range entities {
			if entity != nil {
				out = append(out, entity)
			}
		}
		return out, nil
	}

	out := make([]*T, len(inputs))
	for j, entity := range entities {
		out[positions[j]] = entity
	}
	return out, nil
}
