package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector keeps in-process counters per entity type
type Collector struct {
	mu       sync.RWMutex
	entities map[string]*entityCounters
}

type entityCounters struct {
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	cachePuts      atomic.Uint64
	queries        atomic.Uint64
	totalQueryTime atomic.Uint64 // nanoseconds
	maxQueryTime   atomic.Uint64 // nanoseconds
}

// NewCollector creates an empty statistics collector
func NewCollector() *Collector {
	return &Collector{entities: make(map[string]*entityCounters)}
}

func (c *Collector) counters(entity string) *entityCounters {
	c.mu.RLock()
	ec, ok := c.entities[entity]
	c.mu.RUnlock()
	if ok {
		return ec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ec, ok = c.entities[entity]; !ok {
		ec = &entityCounters{}
		c.entities[entity] = ec
	}
	return ec
}

// NaturalIDCacheHit increments the cache hit counter
func (c *Collector) NaturalIDCacheHit(entity string) {
	c.counters(entity).cacheHits.Add(1)
}

// NaturalIDCacheMiss increments the cache miss counter
func (c *Collector) NaturalIDCacheMiss(entity string) {
	c.counters(entity).cacheMisses.Add(1)
}

// NaturalIDCachePut increments the cache put counter
func (c *Collector) NaturalIDCachePut(entity string) {
	c.counters(entity).cachePuts.Add(1)
}

// NaturalIDQueryExecuted records a store resolution with its latency
func (c *Collector) NaturalIDQueryExecuted(entity string, duration time.Duration) {
	ec := c.counters(entity)
	ec.queries.Add(1)
	ns := uint64(duration.Nanoseconds())
	ec.totalQueryTime.Add(ns)
	for {
		current := ec.maxQueryTime.Load()
		if ns <= current || ec.maxQueryTime.CompareAndSwap(current, ns) {
			break
		}
	}
}

// Snapshot returns the counters of one entity type
func (c *Collector) Snapshot(entity string) Snapshot {
	c.mu.RLock()
	ec, ok := c.entities[entity]
	c.mu.RUnlock()
	if !ok {
		return Snapshot{Entity: entity}
	}
	return ec.snapshot(entity)
}

// Snapshots returns the counters of every entity type seen so far
func (c *Collector) Snapshots() map[string]Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Snapshot, len(c.entities))
	for entity, ec := range c.entities {
		out[entity] = ec.snapshot(entity)
	}
	return out
}

// Reset clears all counters
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = make(map[string]*entityCounters)
}

func (ec *entityCounters) snapshot(entity string) Snapshot {
	hits := ec.cacheHits.Load()
	misses := ec.cacheMisses.Load()
	queries := ec.queries.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	var avg time.Duration
	if queries > 0 {
		avg = time.Duration(ec.totalQueryTime.Load() / queries)
	}

	return Snapshot{
		Entity:          entity,
		CacheHits:       hits,
		CacheMisses:     misses,
		CachePuts:       ec.cachePuts.Load(),
		CacheHitRate:    hitRate,
		QueryCount:      queries,
		AvgQueryLatency: avg,
		MaxQueryLatency: time.Duration(ec.maxQueryTime.Load()),
	}
}

// Snapshot is a point-in-time view of one entity type's natural-id statistics
type Snapshot struct {
	Entity string

	CacheHits    uint64
	CacheMisses  uint64
	CachePuts    uint64
	CacheHitRate float64 // Percentage

	QueryCount      uint64
	AvgQueryLatency time.Duration
	MaxQueryLatency time.Duration
}
