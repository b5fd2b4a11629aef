package loader

import (
	"context"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

// SimpleLoadAccess loads a single entity from one natural-id value. Compound natural ids
// are accepted when the value is an array, slice or name-keyed map.
type SimpleLoadAccess[T any] struct {
	access[T]
}

// NewSimpleLoadAccess opens a single-value load access for the entity described by m
func NewSimpleLoadAccess[T any](sess *session.Session, m *naturalid.Mapping, r *resolver.Resolver, l store.Loader[T]) *SimpleLoadAccess[T] {
	a := &SimpleLoadAccess[T]{access: newAccess(sess, m, r, l)}
	if !m.IsSimple() {
		a.logger().Debug("entity did not define a simple natural id", "entity", m.EntityName())
	}
	return a
}

// With sets the lock options used when the entity is materialized
func (a *SimpleLoadAccess[T]) With(lock store.LockOptions) *SimpleLoadAccess[T] {
	a.lock = lock
	return a
}

// SetSynchronizationEnabled controls whether pending session changes are flushed
// before the lookup (default true)
func (a *SimpleLoadAccess[T]) SetSynchronizationEnabled(enabled bool) *SimpleLoadAccess[T] {
	a.synchronize = enabled
	return a
}

// SetCacheBypass skips reading the resolution cache
func (a *SimpleLoadAccess[T]) SetCacheBypass(bypass bool) *SimpleLoadAccess[T] {
	a.cacheBypass = bypass
	return a
}

// GetReference resolves value to an uninitialized reference; nil when no entity matches
func (a *SimpleLoadAccess[T]) GetReference(ctx context.Context, value any) (*Reference[T], error) {
	if err := a.verifySimplicity(value); err != nil {
		return nil, err
	}
	return a.reference(ctx, value)
}

// Load resolves value and materializes the entity; nil when absent
func (a *SimpleLoadAccess[T]) Load(ctx context.Context, value any) (*T, error) {
	if err := a.verifySimplicity(value); err != nil {
		return nil, err
	}
	return a.load(ctx, value)
}

// LoadOptional is Load with absence made explicit
func (a *SimpleLoadAccess[T]) LoadOptional(ctx context.Context, value any) (Optional[T], error) {
	entity, err := a.Load(ctx, value)
	if err != nil {
		return Optional[T]{}, err
	}
	return OptionalOf(entity), nil
}

func (a *SimpleLoadAccess[T]) verifySimplicity(value any) error {
	if a.mapping.IsSimple() || naturalid.IsCompoundShape(value) {
		return nil
	}
	return &naturalid.IncompatibleShapeError{Entity: a.mapping.EntityName(), Value: value}
}
