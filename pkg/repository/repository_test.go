package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ammar0144/natid4go/pkg/cache"
	"github.com/ammar0144/natid4go/pkg/db"
	"github.com/ammar0144/natid4go/pkg/metadata"
	"github.com/ammar0144/natid4go/pkg/naturalid"
	"github.com/ammar0144/natid4go/pkg/repository"
	"github.com/ammar0144/natid4go/pkg/resolver"
	"github.com/ammar0144/natid4go/pkg/session"
	"github.com/ammar0144/natid4go/pkg/stats"
	"github.com/ammar0144/natid4go/pkg/store"
)

type Person struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `natid:"name"`
}

type Handle struct {
	ID     uint   `gorm:"primaryKey"`
	Handle string `natid:"handle,mutable"`
	Owner  string
}

type stores struct {
	people  store.Store[Person]
	handles store.Store[Handle]
}

type RepositorySuite struct {
	suite.Suite
	newStores func(t *testing.T) stores

	ctx       context.Context
	cache     *cache.Memory
	collector *stats.Collector
	people    *repository.GenericRepository[Person]
	handles   *repository.GenericRepository[Handle]
}

func TestMemoryRepository(t *testing.T) {
	suite.Run(t, &RepositorySuite{newStores: func(*testing.T) stores {
		return stores{
			people:  store.NewMemory[Person](metadata.MustFromModel[Person]()),
			handles: store.NewMemory[Handle](metadata.MustFromModel[Handle]()),
		}
	}})
}

func TestGormRepository(t *testing.T) {
	suite.Run(t, &RepositorySuite{newStores: func(t *testing.T) stores {
		cfg := db.DefaultConfig()
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		manager, err := db.NewManagerWithDialector(cfg, sqlite.Open(":memory:"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = manager.Close() })
		require.NoError(t, manager.DB().AutoMigrate(&Person{}, &Handle{}))

		people, err := store.NewGorm[Person](manager, metadata.MustFromModel[Person]())
		require.NoError(t, err)
		handles, err := store.NewGorm[Handle](manager, metadata.MustFromModel[Handle]())
		require.NoError(t, err)
		return stores{people: people, handles: handles}
	}})
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.cache = cache.NewMemory()
	s.collector = stats.NewCollector()
	st := s.newStores(s.T())

	var err error
	s.people, err = repository.New[Person](metadata.MustFromModel[Person](), st.people,
		resolver.New(s.cache, st.people, resolver.WithStatistics(s.collector)))
	s.Require().NoError(err)
	s.handles, err = repository.New[Handle](metadata.MustFromModel[Handle](), st.handles,
		resolver.New(s.cache, st.handles, resolver.WithStatistics(s.collector)))
	s.Require().NoError(err)
}

func (s *RepositorySuite) TestSimpleNaturalIDLoadsThroughCache() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 1, Name: "John Doe"}))
	s.Require().NoError(s.people.Flush(s.ctx, sess))

	first, err := s.people.BySimpleNaturalID(session.New()).Load(s.ctx, "John Doe")
	s.Require().NoError(err)
	s.Require().NotNil(first)

	second, err := s.people.BySimpleNaturalID(session.New()).Load(s.ctx, "John Doe")
	s.Require().NoError(err)
	s.Require().NotNil(second)

	s.Equal(first.ID, second.ID)
	snap := s.collector.Snapshot("Person")
	s.Equal(uint64(1), snap.CacheMisses)
	s.Equal(uint64(1), snap.CacheHits)
	s.Equal(uint64(1), snap.QueryCount)
}

func (s *RepositorySuite) TestLoadSeesUnflushedPersist() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 2, Name: "Jane Doe"}))

	entity, err := s.people.ByNaturalID(sess).Using("name", "Jane Doe").Load(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(entity)
	s.Equal(uint(2), entity.ID)
	s.Zero(sess.Pending())
}

func (s *RepositorySuite) TestImmutableNaturalIDCannotChange() {
	sess := session.New()
	john := &Person{ID: 1, Name: "John Doe"}
	s.Require().NoError(s.people.Persist(sess, john))
	s.Require().NoError(s.people.Flush(s.ctx, sess))

	renamed := &Person{ID: 1, Name: "Johnny"}
	s.Require().NoError(s.people.Update(sess, renamed))
	err := s.people.Flush(s.ctx, sess)
	s.ErrorIs(err, naturalid.ErrImmutableNaturalID)
	s.Equal(1, sess.Pending())
	sess.Discard()

	entity, err := s.people.BySimpleNaturalID(sess).Load(s.ctx, "John Doe")
	s.Require().NoError(err)
	s.Require().NotNil(entity)
}

func (s *RepositorySuite) TestMutableNaturalIDUpdateInvalidates() {
	sess := session.New()
	s.Require().NoError(s.handles.Persist(sess, &Handle{ID: 1, Handle: "neo", Owner: "thomas"}))
	s.Require().NoError(s.handles.Flush(s.ctx, sess))

	_, err := s.handles.BySimpleNaturalID(sess).Load(s.ctx, "neo")
	s.Require().NoError(err)
	s.Equal(1, s.cache.Len("Handle"))

	s.Require().NoError(s.handles.Update(sess, &Handle{ID: 1, Handle: "the-one", Owner: "thomas"}))
	s.Require().NoError(s.handles.Flush(s.ctx, sess))
	s.Equal(0, s.cache.Len("Handle"))

	old, err := s.handles.BySimpleNaturalID(sess).Load(s.ctx, "neo")
	s.Require().NoError(err)
	s.Nil(old)

	renamed, err := s.handles.BySimpleNaturalID(sess).Load(s.ctx, "the-one")
	s.Require().NoError(err)
	s.Require().NotNil(renamed)
	s.Equal(uint(1), renamed.ID)
}

func (s *RepositorySuite) TestUpdateWithoutNaturalIDChange() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 1, Name: "John Doe"}))
	s.Require().NoError(s.people.Update(sess, &Person{ID: 1, Name: "John Doe"}))
	s.Require().NoError(s.people.Flush(s.ctx, sess))
}

func (s *RepositorySuite) TestRemoveInvalidates() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 1, Name: "John Doe"}))

	entity, err := s.people.BySimpleNaturalID(sess).Load(s.ctx, "John Doe")
	s.Require().NoError(err)
	s.Require().NotNil(entity)
	s.Equal(1, s.cache.Len("Person"))

	s.Require().NoError(s.people.Remove(sess, entity))
	s.Require().NoError(s.people.Flush(s.ctx, sess))
	s.Equal(0, s.cache.Len("Person"))

	opt, err := s.people.BySimpleNaturalID(sess).LoadOptional(s.ctx, "John Doe")
	s.Require().NoError(err)
	s.False(opt.IsPresent())
}

func (s *RepositorySuite) TestMultipleNaturalID() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 1, Name: "John Doe"}))
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 2, Name: "Jane Doe"}))

	entities, err := s.people.ByMultipleNaturalID(sess).MultiLoad(s.ctx, "Jane Doe", "Nobody", "John Doe")
	s.Require().NoError(err)
	s.Require().Len(entities, 3)
	s.Equal(uint(2), entities[0].ID)
	s.Nil(entities[1])
	s.Equal(uint(1), entities[2].ID)
}

func (s *RepositorySuite) TestEvictNaturalIDCache() {
	sess := session.New()
	s.Require().NoError(s.people.Persist(sess, &Person{ID: 1, Name: "John Doe"}))
	s.Require().NoError(s.handles.Persist(sess, &Handle{ID: 1, Handle: "neo"}))

	_, err := s.people.BySimpleNaturalID(sess).Load(s.ctx, "John Doe")
	s.Require().NoError(err)
	_, err = s.handles.BySimpleNaturalID(sess).Load(s.ctx, "neo")
	s.Require().NoError(err)

	s.Require().NoError(s.people.EvictNaturalIDCache(s.ctx))
	s.Equal(0, s.cache.Len("Person"))
	s.Equal(1, s.cache.Len("Handle"))
}

func TestNewValidatesCollaborators(t *testing.T) {
	m := metadata.MustFromModel[Person]()
	ms := store.NewMemory[Person](m)
	r := resolver.New(nil, ms)

	_, err := repository.New[Person](nil, ms, r)
	assert.ErrorIs(t, err, naturalid.ErrInvalidMapping)
	_, err = repository.New[Person](m, nil, r)
	assert.Error(t, err)
	_, err = repository.New[Person](m, ms, nil)
	assert.Error(t, err)

	repo, err := repository.New[Person](m, ms, r)
	require.NoError(t, err)
	assert.Same(t, m, repo.Mapping())

	var _ repository.Repository[Person] = repo
	assert.Error(t, repo.Persist(session.New(), nil))
	assert.Error(t, repo.Update(session.New(), nil))
	assert.Error(t, repo.Remove(session.New(), nil))
}

func TestWritesRequireSession(t *testing.T) {
	m := metadata.MustFromModel[Person]()
	ms := store.NewMemory[Person](m)
	repo, err := repository.New[Person](m, ms, resolver.New(nil, ms))
	require.NoError(t, err)

	assert.Error(t, repo.Persist(nil, &Person{ID: 1, Name: "John Doe"}))
	assert.Error(t, repo.Update(nil, &Person{ID: 1, Name: "John Doe"}))
	assert.Error(t, repo.Remove(nil, &Person{ID: 1, Name: "John Doe"}))
	assert.Error(t, repo.Flush(context.Background(), nil))
	assert.Zero(t, ms.Len())
}

// heldStore holds its first natural-id query after reading the rows
type heldStore struct {
	*store.MemoryStore[Person]
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *heldStore) ResolveIDs(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	ids, err := s.MemoryStore.ResolveIDs(ctx, m, tuples)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return ids, err
}

func TestSessionSeesItsFlushedInsertDuringConcurrentLookup(t *testing.T) {
	ctx := context.Background()
	m := metadata.MustFromModel[Person]()
	hs := &heldStore{
		MemoryStore: store.NewMemory[Person](m),
		read:        make(chan struct{}),
		release:     make(chan struct{}),
	}
	c := cache.NewMemory()
	repo, err := repository.New[Person](m, hs, resolver.New(c, hs))
	require.NoError(t, err)

	// a lookup without a session reads the store before the row exists
	absent := make(chan *Person, 1)
	go func() {
		entity, err := repo.BySimpleNaturalID(nil).Load(ctx, "John Doe")
		assert.NoError(t, err)
		absent <- entity
	}()
	<-hs.read

	sess := session.New()
	require.NoError(t, repo.Persist(sess, &Person{ID: 1, Name: "John Doe"}))
	entity, err := repo.BySimpleNaturalID(sess).Load(ctx, "John Doe")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, uint(1), entity.ID)

	close(hs.release)
	assert.Nil(t, <-absent)
	assert.Equal(t, 1, c.Len("Person"))
}

func TestRemovedRowIsNotCachedByOvertakenLookup(t *testing.T) {
	ctx := context.Background()
	m := metadata.MustFromModel[Person]()
	hs := &heldStore{
		MemoryStore: store.NewMemory[Person](m),
		read:        make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.NoError(t, hs.Insert(ctx, &Person{ID: 1, Name: "John Doe"}))
	c := cache.NewMemory()
	repo, err := repository.New[Person](m, hs, resolver.New(c, hs))
	require.NoError(t, err)

	// the lookup reads the row, then the row is removed before it returns
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := repo.BySimpleNaturalID(nil).Load(ctx, "John Doe")
		assert.NoError(t, err)
	}()
	<-hs.read

	sess := session.New()
	require.NoError(t, repo.Remove(sess, &Person{ID: 1, Name: "John Doe"}))
	require.NoError(t, repo.Flush(ctx, sess))

	close(hs.release)
	<-done
	assert.Zero(t, c.Len("Person"))

	entity, err := repo.BySimpleNaturalID(session.New()).Load(ctx, "John Doe")
	require.NoError(t, err)
	assert.Nil(t, entity)
}
