// Package loader provides the natural-id load access builders: single-entity access by
// compound or simple natural id, and batched multi-entity access.
package loader

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/store"
)

const tracerName = "github.com/ammar0144/natid4go/pkg/loader"

// access holds the state shared by every load access variant
type access[T any] struct {
	session  *session.Session
	mapping  *naturalid.Mapping
	resolver *resolver.Resolver
	loader   store.Loader[T]
	tracer   trace.Tracer

	lock        store.LockOptions
	synchronize bool
	cacheBypass bool
}

func newAccess[T any](sess *session.Session, m *naturalid.Mapping, r *resolver.Resolver, l store.Loader[T]) access[T] {
	return access[T]{
		session:     sess,
		mapping:     m,
		resolver:    r,
		loader:      l,
		tracer:      otel.Tracer(tracerName),
		synchronize: true,
	}
}

func (a *access[T]) logger() *slog.Logger {
	if a.session != nil {
		return a.session.Logger()
	}
	return slog.Default()
}

// synchronizeSession flushes the session's pending writes so lookups see them
func (a *access[T]) synchronizeSession(ctx context.Context) error {
	if !a.synchronize || a.session == nil {
		return nil
	}
	return a.session.FlushPendingChanges(ctx)
}

// resolve flushes, normalizes and resolves one raw value
func (a *access[T]) resolve(ctx context.Context, raw any) (any, bool, error) {
	if err := a.synchronizeSession(ctx); err != nil {
		return nil, false, err
	}
	tuple, err := naturalid.Normalize(a.mapping, raw)
	if err != nil {
		return nil, false, err
	}
	return a.resolver.Resolve(ctx, a.session, a.mapping, tuple, a.cacheBypass)
}

func (a *access[T]) reference(ctx context.Context, raw any) (*Reference[T], error) {
	id, found, err := a.resolve(ctx, raw)
	if err != nil || !found {
		return nil, err
	}
	return &Reference[T]{mapping: a.mapping, id: id, loader: a.loader, lock: a.lock}, nil
}

func (a *access[T]) load(ctx context.Context, raw any) (*T, error) {
	id, found, err := a.resolve(ctx, raw)
	if err != nil || !found {
		return nil, err
	}
	entities, err := a.materialize(ctx, []any{id})
	if err != nil {
		return nil, err
	}
	return entities[0], nil
}

func (a *access[T]) materialize(ctx context.Context, ids []any) (entities []*T, err error) {
	ctx, span := a.tracer.Start(ctx, "natid4go.Materialize", trace.WithAttributes(
		attribute.String("natid4go.entity", a.mapping.EntityName()),
		attribute.Int("natid4go.keys", len(ids)),
		attribute.String("natid4go.lock_mode", a.lock.Mode.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return materialize(ctx, a.loader, a.mapping, ids, a.lock)
}

// materialize loads entities positionally and checks the loader kept the contract
func materialize[T any](ctx context.Context, l store.Loader[T], m *naturalid.Mapping, ids []any, lock store.LockOptions) ([]*T, error) {
	entities, err := l.Materialize(ctx, m, ids, lock)
	if err != nil {
		return nil, err
	}
	if len(entities) != len(ids) {
		return nil, errMaterializeArity(m, len(entities), len(ids))
	}
	return entities, nil
}
