package repository

import (
	"context"

	"github.com/ammar0144/natid4go/pkg/loader"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/session"
)

// Repository is the natural-id access point of one entity type
type Repository[T any] interface {
	// Mapping returns the natural-id descriptor of T
	Mapping() *naturalid.Mapping

	// Load Access (Cache-First Resolution)
	ByNaturalID(sess *session.Session) *loader.LoadAccess[T]
	BySimpleNaturalID(sess *session.Session) *loader.SimpleLoadAccess[T]
	ByMultipleNaturalID(sess *session.Session) *loader.MultiLoadAccess[T]

	// Commands (Queued in the Session, Applied on Flush)
	Persist(sess *session.Session, entity *T) error
	Update(sess *session.Session, entity *T) error
	Remove(sess *session.Session, entity *T) error
	Flush(ctx context.Context, sess *session.Session) error

	// Cache Management
	EvictNaturalIDCache(ctx context.Context) error
}
