package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/store"
)

// Reference is a lazy handle to an entity whose identifier is known.
// The entity is materialized on the first Get.
type Reference[T any] struct {
	mapping *naturalid.Mapping
	id      any
	loader  store.Loader[T]
	lock    store.LockOptions

	mu     sync.Mutex
	entity *T
}

// ID returns the resolved primary key
func (r *Reference[T]) ID() any {
	return r.id
}

// Initialized reports whether the entity has been materialized
func (r *Reference[T]) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entity != nil
}

// Get materializes the entity on first use. It fails with ErrEntityNotFound
// when the row behind the identifier no longer exists.
func (r *Reference[T]) Get(ctx context.Context) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entity != nil {
		return r.entity, nil
	}
	entities, err := materialize(ctx, r.loader, r.mapping, []any{r.id}, r.lock)
	if err != nil {
		return nil, err
	}
	if entities[0] == nil {
		return nil, &naturalid.EntityNotFoundError{Entity: r.mapping.EntityName(), ID: r.id}
	}
	r.entity = entities[0]
	return r.entity, nil
}

// Optional is an explicitly present-or-absent entity
type Optional[T any] struct {
	value *T
}

// OptionalOf wraps entity; a nil entity is absent
func OptionalOf[T any](entity *T) Optional[T] {
	return Optional[T]{value: entity}
}

// IsPresent reports whether an entity was found
func (o Optional[T]) IsPresent() bool {
	return o.value != nil
}

// Get returns the entity and whether it is present
func (o Optional[T]) Get() (*T, bool) {
	return o.value, o.value != nil
}

// OrElse returns the entity, or fallback when absent
func (o Optional[T]) OrElse(fallback *T) *T {
	if o.value == nil {
		return fallback
	}
	return o.value
}

func errMaterializeArity(m *naturalid.Mapping, got, want int) error {
	return fmt.Errorf("materialize %s: store returned %d entities for %d identifiers", m.EntityName(), got, want)
}
