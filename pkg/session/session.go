// Package session provides the unit of work threaded through natural-id loads:
// an identity for logging and a queue of pending changes flushed before
// synchronized lookups.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Change is a pending write applied at flush time
type Change struct {
	Description string
	Apply       func(ctx context.Context) error
}

// Session is a single caller's unit of work. It is safe for concurrent use,
// though a session is normally owned by one goroutine.
type Session struct {
	id      uuid.UUID
	logger  *slog.Logger
	mu      sync.Mutex
	pending []Change
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New opens an empty session
func New(opts ...Option) *Session {
	s := &Session{
		id:     uuid.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With("session_id", s.id.String())
	return s
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Logger returns the session-scoped logger
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Enqueue records a change to apply on the next flush
func (s *Session) Enqueue(description string, apply func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, Change{Description: description, Apply: apply})
}

// Pending returns the number of changes waiting to be flushed
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushPendingChanges applies queued changes in order. On failure the failed change
// and everything after it stay queued.
func (s *Session) FlushPendingChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	applied := 0
	for _, change := range s.pending {
		if err := ctx.Err(); err != nil {
			s.pending = s.pending[applied:]
			return err
		}
		if err := change.Apply(ctx); err != nil {
			s.pending = s.pending[applied:]
			return fmt.Errorf("flush %s: %w", change.Description, err)
		}
		applied++
	}

	s.pending = nil
	s.logger.InfoContext(ctx, "session flushed", "changes", applied)
	return nil
}

// Discard drops every pending change
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}
