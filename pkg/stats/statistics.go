// Package stats records natural-id cache and query statistics.
// Notifications are fire-and-forget; Notify shields callers from collector panics.
package stats

import (
	"log/slog"
	"time"
)

// Statistics receives natural-id resolution events per entity type
type Statistics interface {
	NaturalIDCacheHit(entity string)
	NaturalIDCacheMiss(entity string)
	NaturalIDCachePut(entity string)
	NaturalIDQueryExecuted(entity string, duration time.Duration)
}

// Noop discards every event
type Noop struct{}

func (Noop) NaturalIDCacheHit(string) {}
func (Noop) NaturalIDCacheMiss(string) {}
func (Noop) NaturalIDCachePut(string) {}
func (Noop) NaturalIDQueryExecuted(string, time.Duration) {}

// Notify runs fn against s, recovering from any panic so a faulty
// collector can never fail a load
func Notify(logger *slog.Logger, s Statistics, fn func(Statistics)) {
	if s == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("statistics notification failed", "panic", r)
		}
	}()
	fn(s)
}

// Multi fans events out to several collectors
type Multi []Statistics

func (m Multi) NaturalIDCacheHit(entity string) {
	for _, s := range m {
		s.NaturalIDCacheHit(entity)
	}
}

func (m Multi) NaturalIDCacheMiss(entity string) {
	for _, s := range m {
		s.NaturalIDCacheMiss(entity)
	}
}

func (m Multi) NaturalIDCachePut(entity string) {
	for _, s := range m {
		s.NaturalIDCachePut(entity)
	}
}

func (m Multi) NaturalIDQueryExecuted(entity string, duration time.Duration) {
	for _, s := range m {
		s.NaturalIDQueryExecuted(entity, duration)
	}
}
