// Package resolver turns normalized natural-id tuples into primary keys,
// consulting the resolution cache before the store and writing store results back.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ammar0144/natid4go/pkg/cache"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/stats"
	"github.com/ammar0144/natid4go/pkg/store"
)

const tracerName = "github.com/ammar0144/natid4go/pkg/resolver"

// Resolver resolves natural ids to primary keys. It is shared by all sessions.
type Resolver struct {
	cache  cache.ResolutionCache
	store  store.IDResolver
	stats  stats.Statistics
	logger *slog.Logger
	tracer trace.Tracer
	group  singleflight.Group

	// generation advances whenever natural ids change in the store; store queries
	// are only shared, and only cached, within one generation
	generation atomic.Uint64
}

// Option configures a Resolver
type Option func(*Resolver)

// WithStatistics reports cache hits, misses, puts and store queries to s
func WithStatistics(s stats.Statistics) Option {
	return func(r *Resolver) {
		if s != nil {
			r.stats = s
		}
	}
}

// WithLogger sets the fallback logger used when a call carries no session
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider; the global provider is used otherwise
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a resolver over the given cache and store. A nil cache disables caching.
func New(c cache.ResolutionCache, s store.IDResolver, opts ...Option) *Resolver {
	if c == nil {
		c = cache.None{}
	}
	r := &Resolver{
		cache:  c,
		store:  s,
		stats:  stats.Noop{},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Cache returns the resolution cache the resolver reads and writes
func (r *Resolver) Cache() cache.ResolutionCache {
	return r.cache
}

// Advance marks natural ids as changed in the store. Queries already in flight are
// not shared with later resolutions and their results are not written to the cache.
// Writers call it after the store write and before invalidating cache entries.
func (r *Resolver) Advance() {
	r.generation.Add(1)
}

// Resolve returns the primary key for tuple. found is false when no row matches,
// which is not an error. With bypass set the cache is not read, but a store hit is
// still written back.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, m *naturalid.Mapping, tuple naturalid.Tuple, bypass bool) (id any, found bool, err error) {
	logger := r.loggerFor(sess)
	gen := r.generation.Load()
	ctx, span := r.tracer.Start(ctx, "natid4go.Resolve", trace.WithAttributes(
		attribute.String("natid4go.entity", m.EntityName()),
		attribute.Bool("natid4go.cache_bypass", bypass),
	))
	defer func() {
		endSpan(span, err)
	}()

	useCache := m.Cacheable() && !bypass
	if useCache {
		cached, hit, err := r.cache.Get(ctx, m, tuple)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "natural-id cache read failed, resolving against store",
				"entity", m.EntityName(), "error", err)
			r.notify(logger, func(s stats.Statistics) { s.NaturalIDCacheMiss(m.EntityName()) })
		case hit:
			span.SetAttributes(attribute.Bool("natid4go.cache_hit", true))
			r.notify(logger, func(s stats.Statistics) { s.NaturalIDCacheHit(m.EntityName()) })
			return cached, true, nil
		default:
			r.notify(logger, func(s stats.Statistics) { s.NaturalIDCacheMiss(m.EntityName()) })
		}
	}
	span.SetAttributes(attribute.Bool("natid4go.cache_hit", false))

	key, err := tuple.Encode()
	if err != nil {
		return nil, false, err
	}
	flight := strconv.FormatUint(gen, 10) + "\x00" + m.EntityName() + "\x00" + string(key)
	v, err, _ := r.group.Do(flight, func() (any, error) {
		ids, err := r.query(ctx, logger, m, []naturalid.Tuple{tuple})
		if err != nil {
			return nil, err
		}
		return ids[0], nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}

	if m.Cacheable() {
		r.put(ctx, logger, gen, m, tuple, v)
	}
	return v, true, nil
}

// BatchOptions controls ResolveBatch
type BatchOptions struct {
	CacheBypass bool

	// BatchSize caps the tuples per store request; 0 sends all misses at once
	BatchSize int
}

// ResolveBatch resolves every tuple, positionally; nil marks a tuple with no row.
// Cache lookups are per tuple, and all misses go to the store as grouped requests.
func (r *Resolver) ResolveBatch(ctx context.Context, sess *session.Session, m *naturalid.Mapping, tuples []naturalid.Tuple, opts BatchOptions) (ids []any, err error) {
	logger := r.loggerFor(sess)
	gen := r.generation.Load()
	ctx, span := r.tracer.Start(ctx, "natid4go.ResolveBatch", trace.WithAttributes(
		attribute.String("natid4go.entity", m.EntityName()),
		attribute.Int("natid4go.keys", len(tuples)),
		attribute.Bool("natid4go.cache_bypass", opts.CacheBypass),
	))
	defer func() {
		endSpan(span, err)
	}()

	ids = make([]any, len(tuples))
	if len(tuples) == 0 {
		return ids, nil
	}

	var cached []any
	if m.Cacheable() && !opts.CacheBypass {
		cached, err = cache.GetMany(ctx, r.cache, m, tuples)
		if err != nil {
			logger.WarnContext(ctx, "natural-id cache read failed, resolving against store",
				"entity", m.EntityName(), "error", err)
			cached = nil
		}
		for i := range tuples {
			if cached != nil && cached[i] != nil {
				ids[i] = cached[i]
				r.notify(logger, func(s stats.Statistics) { s.NaturalIDCacheHit(m.EntityName()) })
			} else {
				r.notify(logger, func(s stats.Statistics) { s.NaturalIDCacheMiss(m.EntityName()) })
			}
		}
	}

	// group misses by tuple so duplicate inputs hit the store once
	var misses []naturalid.Tuple
	positions := make(map[string][]int)
	for i, tuple := range tuples {
		if ids[i] != nil {
			continue
		}
		key, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		if _, seen := positions[string(key)]; !seen {
			misses = append(misses, tuple)
		}
		positions[string(key)] = append(positions[string(key)], i)
	}
	span.SetAttributes(attribute.Int("natid4go.cache_misses", len(misses)))

	for _, chunk := range chunks(misses, opts.BatchSize) {
		resolved, err := r.query(ctx, logger, m, chunk)
		if err != nil {
			return nil, err
		}
		for j, id := range resolved {
			if id == nil {
				continue
			}
			key, err := chunk[j].Encode()
			if err != nil {
				return nil, err
			}
			for _, pos := range positions[string(key)] {
				ids[pos] = id
			}
			if m.Cacheable() {
				r.put(ctx, logger, gen, m, chunk[j], id)
			}
		}
	}
	return ids, nil
}

func (r *Resolver) query(ctx context.Context, logger *slog.Logger, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	start := time.Now()
	ids, err := r.store.ResolveIDs(ctx, m, tuples)
	elapsed := time.Since(start)
	r.notify(logger, func(s stats.Statistics) { s.NaturalIDQueryExecuted(m.EntityName(), elapsed) })
	if err != nil {
		return nil, fmt.Errorf("resolve %s natural id: %w", m.EntityName(), err)
	}
	if len(ids) != len(tuples) {
		return nil, fmt.Errorf("resolve %s natural id: store returned %d identifiers for %d keys",
			m.EntityName(), len(ids), len(tuples))
	}
	return ids, nil
}

// put writes through to the cache a result read in generation gen; failures are
// logged and ignored. A result that an Advance overtook is dropped, and one that
// raced with an Advance is removed again after the write.
func (r *Resolver) put(ctx context.Context, logger *slog.Logger, gen uint64, m *naturalid.Mapping, tuple naturalid.Tuple, id any) {
	if r.generation.Load() != gen {
		logger.DebugContext(ctx, "natural ids changed during resolution, not caching",
			"entity", m.EntityName(), "natural_id", tuple.String())
		return
	}
	if err := r.cache.Put(ctx, m, tuple, id); err != nil {
		logger.WarnContext(ctx, "natural-id cache write failed", "entity", m.EntityName(), "error", err)
		return
	}
	if r.generation.Load() != gen {
		if err := r.cache.Invalidate(ctx, m, tuple); err != nil {
			logger.WarnContext(ctx, "natural-id cache invalidation failed",
				"entity", m.EntityName(), "natural_id", tuple.String(), "error", err)
		}
		return
	}
	r.notify(logger, func(s stats.Statistics) { s.NaturalIDCachePut(m.EntityName()) })
}

func (r *Resolver) notify(logger *slog.Logger, fn func(stats.Statistics)) {
	stats.Notify(logger, r.stats, fn)
}

func (r *Resolver) loggerFor(sess *session.Session) *slog.Logger {
	if sess != nil {
		return sess.Logger()
	}
	return r.logger
}

func chunks(tuples []naturalid.Tuple, size int) [][]naturalid.Tuple {
	if len(tuples) == 0 {
		return nil
	}
	if size <= 0 || size >= len(tuples) {
		return [][]naturalid.Tuple{tuples}
	}
	out := make([][]naturalid.Tuple, 0, (len(tuples)+size-1)/size)
	for start := 0; start < len(tuples); start += size {
		end := min(start+size, len(tuples))
		out = append(out, tuples[start:end])
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
