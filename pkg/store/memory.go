package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ammar0144/natid4go/pkg/naturalid"
)

// MemoryStore keeps entities in memory, keyed by identifier.
// Entities are copied on the way in and out.
type MemoryStore[T any] struct {
	mu       sync.RWMutex
	mapping  *naturalid.Mapping
	entities map[string]T

	resolveCalls     atomic.Int64
	materializeCalls atomic.Int64
	lastLock         atomic.Value // LockOptions
}

// NewMemory creates an empty in-memory store for entities described by m
func NewMemory[T any](m *naturalid.Mapping) *MemoryStore[T] {
	return &MemoryStore[T]{
		mapping:  m,
		entities: make(map[string]T),
	}
}

func (s *MemoryStore[T]) ResolveIDs(ctx context.Context, m *naturalid.Mapping, tuples []naturalid.Tuple) ([]any, error) {
	s.resolveCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]any, len(s.entities))
	for _, entity := range s.entities {
		tuple, err := m.Extract(&entity)
		if err != nil {
			return nil, err
		}
		key, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		id, err := m.ExtractID(&entity)
		if err != nil {
			return nil, err
		}
		index[string(key)] = id
	}

	ids := make([]any, len(tuples))
	for i, tuple := range tuples {
		key, err := tuple.Encode()
		if err != nil {
			return nil, err
		}
		ids[i] = index[string(key)]
	}
	return ids, nil
}

func (s *MemoryStore[T]) Materialize(ctx context.Context, _ *naturalid.Mapping, ids []any, lock LockOptions) ([]*T, error) {
	s.materializeCalls.Add(1)
	s.lastLock.Store(lock)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*T, len(ids))
	for i, id := range ids {
		if id == nil {
			continue
		}
		key, err := idKey(id)
		if err != nil {
			return nil, err
		}
		if entity, ok := s.entities[key]; ok {
			copied := entity
			out[i] = &copied
		}
	}
	return out, nil
}

func (s *MemoryStore[T]) Insert(ctx context.Context, entity *T) error {
	key, err := s.key(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[key]; exists {
		return fmt.Errorf("%s: duplicate identifier", s.mapping.EntityName())
	}
	s.entities[key] = *entity
	return nil
}

func (s *MemoryStore[T]) Update(ctx context.Context, entity *T) error {
	key, err := s.key(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[key] = *entity
	return nil
}

func (s *MemoryStore[T]) Delete(ctx context.Context, entity *T) error {
	key, err := s.key(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, key)
	return nil
}

// Len returns the number of stored entities
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// ResolveCalls returns how many times ResolveIDs was called
func (s *MemoryStore[T]) ResolveCalls() int {
	return int(s.resolveCalls.Load())
}

// MaterializeCalls returns how many times Materialize was called
func (s *MemoryStore[T]) MaterializeCalls() int {
	return int(s.materializeCalls.Load())
}

// LastLock returns the lock options of the latest Materialize call
func (s *MemoryStore[T]) LastLock() LockOptions {
	lock, _ := s.lastLock.Load().(LockOptions)
	return lock
}

func (s *MemoryStore[T]) key(entity *T) (string, error) {
	if entity == nil {
		return "", fmt.Errorf("entity cannot be nil")
	}
	id, err := s.mapping.ExtractID(entity)
	if err != nil {
		return "", err
	}
	if id == nil || reflect.ValueOf(id).IsZero() {
		return "", fmt.Errorf("%s: identifier is required", s.mapping.EntityName())
	}
	return idKey(id)
}
