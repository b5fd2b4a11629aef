package loader_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ammar0144/natid4go/pkg/cache"
	"github.com/ammar0144/natid4go/pkg/loader"
	"github.com/ammar0144/natid4go/pkg/metadata"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/stats"
	"github.com/ammar0144/natid4go/pkg/store"
)

type Account struct {
	ID       uint
	System   string `natid:"system"`
	Username string `natid:"username"`
}

type Person struct {
	ID   uint
	Name string `natid:"name"`
}

type LoaderSuite struct {
	suite.Suite
	ctx       context.Context
	logs      *bytes.Buffer
	session   *session.Session
	mapping   *naturalid.Mapping
	store     *store.MemoryStore[Account]
	collector *stats.Collector
	resolver  *resolver.Resolver
}

func TestLoaderSuite(t *testing.T) {
	suite.Run(t, new(LoaderSuite))
}

func (s *LoaderSuite) SetupTest() {
	s.ctx = context.Background()
	s.logs = new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(s.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s.session = session.New(session.WithLogger(logger))
	s.mapping = metadata.MustFromModel[Account]()
	s.store = store.NewMemory[Account](s.mapping)
	s.collector = stats.NewCollector()
	s.resolver = resolver.New(cache.NewMemory(), s.store, resolver.WithStatistics(s.collector))

	s.Require().NoError(s.store.Insert(s.ctx, &Account{ID: 1, System: "matrix", Username: "neo"}))
	s.Require().NoError(s.store.Insert(s.ctx, &Account{ID: 2, System: "matrix", Username: "trinity"}))
}

func (s *LoaderSuite) multi() *loader.MultiLoadAccess[Account] {
	return loader.NewMultiLoadAccess[Account](s.session, s.mapping, s.resolver, s.store)
}

func (s *LoaderSuite) simple() *loader.SimpleLoadAccess[Account] {
	return loader.NewSimpleLoadAccess[Account](s.session, s.mapping, s.resolver, s.store)
}

func (s *LoaderSuite) TestMultiLoadOrderedKeepsPlaceholders() {
	entities, err := s.multi().MultiLoad(s.ctx,
		loader.CompoundValue("system", "matrix", "username", "neo"),
		loader.CompoundValue("system", "matrix", "username", "bogus"),
	)
	s.Require().NoError(err)
	s.Require().Len(entities, 2)
	s.Require().NotNil(entities[0])
	s.Equal("neo", entities[0].Username)
	s.Nil(entities[1])

	s.Equal(1, s.store.ResolveCalls())
	s.Equal(1, s.store.MaterializeCalls())
}

func (s *LoaderSuite) TestMultiLoadUnorderedReturnsOnlyFound() {
	entities, err := s.multi().EnableOrderedReturn(false).MultiLoad(s.ctx,
		[]any{"matrix", "bogus"},
		[]string{"matrix", "trinity"},
		map[string]string{"system": "matrix", "username": "neo"},
	)
	s.Require().NoError(err)
	s.Require().Len(entities, 2)

	names := []string{entities[0].Username, entities[1].Username}
	s.ElementsMatch([]string{"neo", "trinity"}, names)
}

func (s *LoaderSuite) TestMultiLoadFailsFastOnMalformedInput() {
	_, err := s.multi().MultiLoad(s.ctx,
		loader.CompoundValue("system", "matrix", "username", "neo"),
		loader.CompoundValue("system", "matrix"),
	)
	s.ErrorIs(err, naturalid.ErrMissingAttribute)
	s.ErrorIs(err, naturalid.ErrInvalidInput)
	s.Zero(s.store.ResolveCalls())
}

func (s *LoaderSuite) TestMultiLoadBatchSize() {
	entities, err := s.multi().WithBatchSize(1).SetCacheBypass(true).MultiLoad(s.ctx,
		[]any{"matrix", "neo"},
		[]any{"matrix", "trinity"},
	)
	s.Require().NoError(err)
	s.Len(entities, 2)
	s.Equal(2, s.store.ResolveCalls())
	s.Equal(1, s.store.MaterializeCalls())
}

func (s *LoaderSuite) TestMultiLoadNothingFound() {
	entities, err := s.multi().MultiLoad(s.ctx, []any{"matrix", "bogus"})
	s.Require().NoError(err)
	s.Equal([]*Account{nil}, entities)
	s.Zero(s.store.MaterializeCalls())
}

func (s *LoaderSuite) TestSimpleAccessRejectsScalarForCompoundID() {
	_, err := s.simple().Load(s.ctx, "neo")
	s.ErrorIs(err, naturalid.ErrIncompatibleShape)
	s.Contains(err.Error(), "Account")
	s.Contains(err.Error(), "neo")
	s.Contains(s.logs.String(), "entity did not define a simple natural id")
	s.Zero(s.store.ResolveCalls())
}

func (s *LoaderSuite) TestSimpleAccessAcceptsCompoundShapes() {
	entity, err := s.simple().Load(s.ctx, []any{"matrix", "neo"})
	s.Require().NoError(err)
	s.Require().NotNil(entity)
	s.Equal(uint(1), entity.ID)

	ref, err := s.simple().GetReference(s.ctx, map[string]any{"system": "matrix", "username": "trinity"})
	s.Require().NoError(err)
	s.Require().NotNil(ref)
	s.Equal(uint(2), ref.ID())
}

func (s *LoaderSuite) TestLoadAccessUsing() {
	entity, err := loader.NewLoadAccess[Account](s.session, s.mapping, s.resolver, s.store).
		Using("username", "neo").
		Using("system", "matrix").
		Load(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(entity)
	s.Equal("neo", entity.Username)

	_, err = loader.NewLoadAccess[Account](s.session, s.mapping, s.resolver, s.store).
		Using("username", "neo").
		Load(s.ctx)
	s.ErrorIs(err, naturalid.ErrMissingAttribute)
}

func (s *LoaderSuite) TestLoadOptionalAbsent() {
	opt, err := loader.NewLoadAccess[Account](s.session, s.mapping, s.resolver, s.store).
		Using("system", "matrix").
		Using("username", "bogus").
		LoadOptional(s.ctx)
	s.Require().NoError(err)
	s.False(opt.IsPresent())
	entity, ok := opt.Get()
	s.False(ok)
	s.Nil(entity)

	fallback := &Account{Username: "guest"}
	s.Same(fallback, opt.OrElse(fallback))

	opt, err = s.simple().LoadOptional(s.ctx, []any{"matrix", "trinity"})
	s.Require().NoError(err)
	s.True(opt.IsPresent())
}

func (s *LoaderSuite) TestGetReferenceIsLazy() {
	ref, err := s.simple().GetReference(s.ctx, []any{"matrix", "neo"})
	s.Require().NoError(err)
	s.Require().NotNil(ref)
	s.False(ref.Initialized())
	s.Zero(s.store.MaterializeCalls())

	entity, err := ref.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("neo", entity.Username)
	s.True(ref.Initialized())

	_, err = ref.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, s.store.MaterializeCalls())

	missing, err := s.simple().GetReference(s.ctx, []any{"matrix", "bogus"})
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *LoaderSuite) TestReferenceToRemovedRow() {
	ref, err := s.simple().GetReference(s.ctx, []any{"matrix", "trinity"})
	s.Require().NoError(err)
	s.Require().NotNil(ref)

	s.Require().NoError(s.store.Delete(s.ctx, &Account{ID: 2}))

	_, err = ref.Get(s.ctx)
	s.ErrorIs(err, naturalid.ErrEntityNotFound)
	var notFound *naturalid.EntityNotFoundError
	s.Require().ErrorAs(err, &notFound)
	s.Equal(uint(2), notFound.ID)
}

func (s *LoaderSuite) TestLockOptionsReachTheStore() {
	lock := store.LockOptions{Mode: store.LockPessimisticWrite, NoWait: true}
	_, err := s.simple().With(lock).Load(s.ctx, []any{"matrix", "neo"})
	s.Require().NoError(err)
	s.Equal(lock, s.store.LastLock())

	_, err = s.multi().With(store.LockOptions{Mode: store.LockPessimisticRead}).MultiLoad(s.ctx, []any{"matrix", "neo"})
	s.Require().NoError(err)
	s.Equal(store.LockPessimisticRead, s.store.LastLock().Mode)
}

func (s *LoaderSuite) TestSynchronizationFlushesPendingWrites() {
	morpheus := &Account{ID: 3, System: "matrix", Username: "morpheus"}
	s.session.Enqueue("insert morpheus", func(ctx context.Context) error {
		return s.store.Insert(ctx, morpheus)
	})

	// disabled synchronization leaves the pending insert invisible
	entity, err := s.simple().SetSynchronizationEnabled(false).Load(s.ctx, []any{"matrix", "morpheus"})
	s.Require().NoError(err)
	s.Nil(entity)
	s.Equal(1, s.session.Pending())

	entity, err = s.simple().Load(s.ctx, []any{"matrix", "morpheus"})
	s.Require().NoError(err)
	s.Require().NotNil(entity)
	s.Equal(uint(3), entity.ID)
	s.Zero(s.session.Pending())
}

func (s *LoaderSuite) TestSecondLoadIsCacheHit() {
	for range 2 {
		entity, err := s.simple().Load(s.ctx, []any{"matrix", "neo"})
		s.Require().NoError(err)
		s.Equal(uint(1), entity.ID)
	}
	snap := s.collector.Snapshot("Account")
	s.Equal(uint64(1), snap.CacheMisses)
	s.Equal(uint64(1), snap.CacheHits)
	s.Equal(1, s.store.ResolveCalls())
}

func TestSimpleNaturalID(t *testing.T) {
	ctx := context.Background()
	m := metadata.MustFromModel[Person]()
	ms := store.NewMemory[Person](m)
	require.NoError(t, ms.Insert(ctx, &Person{ID: 7, Name: "John Doe"}))
	r := resolver.New(nil, ms)

	access := loader.NewSimpleLoadAccess[Person](nil, m, r, ms)
	entity, err := access.Load(ctx, "John Doe")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, uint(7), entity.ID)

	entities, err := loader.NewMultiLoadAccess[Person](nil, m, r, ms).MultiLoad(ctx, "Jane Doe", "John Doe")
	require.NoError(t, err)
	assert.Nil(t, entities[0])
	assert.Equal(t, uint(7), entities[1].ID)
}

func TestCompoundValue(t *testing.T) {
	assert.Equal(t, map[string]any{"system": "matrix", "username": "neo"},
		loader.CompoundValue("system", "matrix", "username", "neo"))
	assert.Panics(t, func() { loader.CompoundValue("system") })
	assert.Panics(t, func() { loader.CompoundValue(1, "matrix") })
}
