package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/ammar0144/natid4go/pkg/naturalid"
)

// Memory is an in-process ResolutionCache shared by all sessions of one process
type Memory struct {
	mu         sync.RWMutex
	regions    map[string]*region
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type region struct {
	entries map[string]*list.Element
	order   *list.List // oldest write at the front
}

type memoryEntry struct {
	key       string
	id        any
	expiresAt time.Time
}

// MemoryOption configures a Memory cache
type MemoryOption func(*Memory)

// WithTTL expires entries after ttl; 0 disables expiry
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.ttl = ttl
	}
}

// WithMaxEntries bounds each entity region, evicting the least recently written entry
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		m.maxEntries = n
	}
}

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory resolution cache
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		regions: make(map[string]*region),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Memory) Get(_ context.Context, mapping *naturalid.Mapping, tuple naturalid.Tuple) (any, bool, error) {
	key, err := tuple.Encode()
	if err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	r, ok := m.regions[mapping.EntityName()]
	var entry *memoryEntry
	if ok {
		if el, hit := r.entries[string(key)]; hit {
			entry = el.Value.(*memoryEntry)
		}
	}
	m.mu.RUnlock()

	if entry == nil {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.remove(mapping.EntityName(), string(key), entry)
		return nil, false, nil
	}
	return entry.id, true, nil
}

func (m *Memory) Put(_ context.Context, mapping *naturalid.Mapping, tuple naturalid.Tuple, id any) error {
	key, err := tuple.Encode()
	if err != nil {
		return err
	}

	entry := &memoryEntry{key: string(key), id: id}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[mapping.EntityName()]
	if !ok {
		r = &region{entries: make(map[string]*list.Element), order: list.New()}
		m.regions[mapping.EntityName()] = r
	}

	if el, exists := r.entries[entry.key]; exists {
		el.Value = entry
		r.order.MoveToBack(el)
		return nil
	}

	r.entries[entry.key] = r.order.PushBack(entry)
	for m.maxEntries > 0 && r.order.Len() > m.maxEntries {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, mapping *naturalid.Mapping, tuple naturalid.Tuple) error {
	key, err := tuple.Encode()
	if err != nil {
		return err
	}
	m.remove(mapping.EntityName(), string(key), nil)
	return nil
}

func (m *Memory) Clear(_ context.Context, mapping *naturalid.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, mapping.EntityName())
	return nil
}

// Len returns the number of entries cached for an entity type
func (m *Memory) Len(entityName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.regions[entityName]; ok {
		return r.order.Len()
	}
	return 0
}

// remove deletes key; when expected is set, only if it is still the current entry
func (m *Memory) remove(entityName, key string, expected *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[entityName]
	if !ok {
		return
	}
	el, ok := r.entries[key]
	if !ok {
		return
	}
	if expected != nil && el.Value.(*memoryEntry) != expected {
		return
	}
	r.order.Remove(el)
	delete(r.entries, key)
}
