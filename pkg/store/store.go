// Package store holds the persistence collaborators of natural-id resolution:
// resolving natural-id tuples to identifiers, materializing entities by identifier,
// and writing entity changes.
package store

import (
	"context"

	"github.com/ammar0144/natid4go/pkg/naturalid"
)

// IDResolver resolves natural-id tuples against the authoritative store
type IDResolver interface {
	// ResolveIDs returns one identifier per tuple, positionally; nil marks a tuple with no row.
	// Every tuple is resolved in as few round trips as the store allows.
	ResolveIDs(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error)
}

// Loader materializes entities by identifier
type Loader[T any] interface {
	// Materialize returns one entity per identifier, positionally; nil marks a missing row
	Materialize(ctx context.Context, m *naturalid.Mapping, ids []any, lock LockOptions) ([]*T, error)
}

// Writer applies entity changes
type Writer[T any] interface {
	Insert(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, entity *T) error
}

// Store combines every collaborator needed by a repository
type Store[T any] interface {
	IDResolver
	Loader[T]
	Writer[T]
}

// idKey returns a comparable key for an identifier; integer widths compare equal
func idKey(id any) (string, error) {
	b, err := naturalid.Tuple{id}.Encode()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
