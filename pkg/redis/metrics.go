package redis

import (
	"sync/atomic"
	"time"
)

// Op is a Redis command family tracked by Metrics
type Op int

const (
	OpGet Op = iota
	OpMGet
	OpSet
	OpDelete
	OpScan
	numOps
)

var opNames = [numOps]string{"get", "mget", "set", "delete", "scan"}

func (o Op) String() string {
	if o < 0 || o >= numOps {
		return "unknown"
	}
	return opNames[o]
}

type opCounters struct {
	calls  atomic.Uint64
	errors atomic.Uint64
	nanos  atomic.Uint64
}

// Metrics counts natural-id cache lookups and Redis command latency
type Metrics struct {
	ops         [numOps]opCounters
	hits        atomic.Uint64
	misses      atomic.Uint64
	invalidated atomic.Uint64
}

// NewMetrics creates an empty metrics set
func NewMetrics() *Metrics {
	return &Metrics{}
}

// observe records one command call; err is nil on success
func (m *Metrics) observe(op Op, start time.Time, err error) {
	c := &m.ops[op]
	c.calls.Add(1)
	c.nanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		c.errors.Add(1)
	}
}

// lookups records the outcome of key lookups
func (m *Metrics) lookups(hits, misses int) {
	m.hits.Add(uint64(hits))
	m.misses.Add(uint64(misses))
}

func (m *Metrics) invalidate(keys int) {
	m.invalidated.Add(uint64(keys))
}

// Snapshot returns the current values
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Hits:            m.hits.Load(),
		Misses:          m.misses.Load(),
		InvalidatedKeys: m.invalidated.Load(),
		Ops:             make(map[Op]OpSnapshot, numOps),
	}
	if total := snap.Hits + snap.Misses; total > 0 {
		snap.HitRate = float64(snap.Hits) / float64(total) * 100
	}

	for op := range numOps {
		c := &m.ops[op]
		calls := c.calls.Load()
		if calls == 0 {
			continue
		}
		errs := c.errors.Load()
		snap.Errors += errs
		snap.Ops[op] = OpSnapshot{
			Calls:      calls,
			Errors:     errs,
			AvgLatency: time.Duration(c.nanos.Load() / calls),
		}
	}
	return snap
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	for op := range numOps {
		m.ops[op].calls.Store(0)
		m.ops[op].errors.Store(0)
		m.ops[op].nanos.Store(0)
	}
	m.hits.Store(0)
	m.misses.Store(0)
	m.invalidated.Store(0)
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	Hits    uint64
	Misses  uint64
	HitRate float64 // percentage
	Errors  uint64

	// InvalidatedKeys counts keys removed by pattern invalidation
	InvalidatedKeys uint64

	// Ops holds per-command counters; commands never called are absent
	Ops map[Op]OpSnapshot
}

// OpSnapshot holds the counters of one command family
type OpSnapshot struct {
	Calls      uint64
	Errors     uint64
	AvgLatency time.Duration
}
