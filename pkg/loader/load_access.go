package loader

import (
	"context"
	"fmt"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

// LoadAccess loads a single entity by its natural id, built up attribute by attribute.
// Builder methods mutate and return the same access; it is not safe for concurrent use.
type LoadAccess[T any] struct {
	access[T]
	values map[string]any
}

// NewLoadAccess opens a load access for the entity described by m.
// A nil session disables synchronization.
func NewLoadAccess[T any](sess *session.Session, m *naturalid.Mapping, r *resolver.Resolver, l store.Loader[T]) *LoadAccess[T] {
	return &LoadAccess[T]{
		access: newAccess(sess, m, r, l),
		values: make(map[string]any, m.Arity()),
	}
}

// With sets the lock options used when the entity is materialized
func (a *LoadAccess[T]) With(lock store.LockOptions) *LoadAccess[T] {
	a.lock = lock
	return a
}

// SetSynchronizationEnabled controls whether pending session changes are flushed
// before the lookup (default true)
func (a *LoadAccess[T]) SetSynchronizationEnabled(enabled bool) *LoadAccess[T] {
	a.synchronize = enabled
	return a
}

// SetCacheBypass skips reading the resolution cache
func (a *LoadAccess[T]) SetCacheBypass(bypass bool) *LoadAccess[T] {
	a.cacheBypass = bypass
	return a
}

// Using binds a natural-id attribute value
func (a *LoadAccess[T]) Using(attribute string, value any) *LoadAccess[T] {
	a.values[attribute] = value
	return a
}

// GetReference resolves the bound natural id to an uninitialized reference.
// It returns nil when no entity matches.
func (a *LoadAccess[T]) GetReference(ctx context.Context) (*Reference[T], error) {
	return a.reference(ctx, a.bound())
}

// Load resolves the bound natural id and materializes the entity; nil when absent
func (a *LoadAccess[T]) Load(ctx context.Context) (*T, error) {
	return a.load(ctx, a.bound())
}

// LoadOptional is Load with absence made explicit
func (a *LoadAccess[T]) LoadOptional(ctx context.Context) (Optional[T], error) {
	entity, err := a.Load(ctx)
	if err != nil {
		return Optional[T]{}, err
	}
	return OptionalOf(entity), nil
}

func (a *LoadAccess[T]) bound() map[string]any {
	values := make(map[string]any, len(a.values))
	for k, v := range a.values {
		values[k] = v
	}
	return values
}

// CompoundValue builds a name-keyed compound natural id from alternating attribute
// names and values. It panics when pairs has odd length or a name is not a string.
func CompoundValue(pairs ...any) map[string]any {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("natid4go: CompoundValue requires name/value pairs, got %d arguments", len(pairs)))
	}
	values := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("natid4go: CompoundValue attribute name must be a string, got %T", pairs[i]))
		}
		values[name] = pairs[i+1]
	}
	return values
}
