// Package cache implements the sharded decision cache: a fixed array of
// shards, each holding up to shardCapacity entries, with popularity-based
// eviction on overflow.
//
// Each shard has its own lock and atomic hit/miss/eviction counters, and
// shards are selected by one seeded hash shared by the whole cache, replacing a CLOCK-Pro replacement policy with a
// blunter average-popularity eviction, and replacing a mutable hlist +
// RCU-read-lock scheme with copy-on-write snapshots: each shard holds an
// atomic.Pointer to an immutable []*entry, so lookups never take a lock at
// all and "deferred reclamation" of a retired snapshot is simply Go's
// garbage collector doing its job once no goroutine still holds the old
// pointer.
//
// © 2025 trustedcell authors. MIT License.
package cache

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/sisungo/trustedcell/internal/fingerprint"
)

// Default shard topology.
const (
	DefaultShardCount    = 256
	DefaultShardCapacity = 64
)

// Decision is the cached (or fresh) allow/deny verdict.
type Decision struct {
	Allow bool
}

// entry is the unit stored in a shard snapshot. Owns a strong cellid
// reference and owned copies of the three string fields.
type entry struct {
	fp         fingerprint.Fingerprint // Cell here is an owned acquired reference
	decision   Decision
	popularity atomic.Uint32
}

// EvictObserver is notified whenever add() evicts entries past capacity.
// Used by internal/metrics; nil is a valid, zero-cost no-op.
type EvictObserver func(shard int, evicted int)

// HitObserver and MissObserver let internal/metrics track per-shard
// hit/miss counts without Cache exposing its shard layout to callers.
type HitObserver func(shard int)
type MissObserver func(shard int)

// Cache is the sharded decision cache.
type Cache struct {
	shards   []*shard
	seed     maphash.Seed
	capacity int
	onEvict  EvictObserver
	onHit    HitObserver
	onMiss   MissObserver
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithShardCount overrides the default 256-shard topology (tests only).
func WithShardCount(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.shards = make([]*shard, n)
		}
	}
}

// WithShardCapacity overrides the default 64-entries-per-shard capacity.
func WithShardCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithEvictObserver registers a callback invoked after each eviction sweep.
func WithEvictObserver(fn EvictObserver) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// WithHitObserver registers a callback invoked on every cache hit.
func WithHitObserver(fn HitObserver) Option {
	return func(c *Cache) { c.onHit = fn }
}

// WithMissObserver registers a callback invoked on every cache miss.
func WithMissObserver(fn MissObserver) Option {
	return func(c *Cache) { c.onMiss = fn }
}

// New constructs a Cache with the default (or overridden) shard topology.
func New(opts ...Option) *Cache {
	c := &Cache{
		shards:   make([]*shard, DefaultShardCount),
		seed:     maphash.MakeSeed(),
		capacity: DefaultShardCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := range c.shards {
		c.shards[i] = &shard{}
	}
	return c
}

func (c *Cache) shardFor(fp fingerprint.Fingerprint) (*shard, int) {
	idx := int(fp.Hash(c.seed) % uint64(len(c.shards)))
	return c.shards[idx], idx
}

// Lookup returns the cached decision for fp, if any. It never blocks and
// never takes a lock, and bumps the matching
// entry's popularity on hit.
func (c *Cache) Lookup(fp fingerprint.Fingerprint) (Decision, bool) {
	s, idx := c.shardFor(fp)
	d, ok := s.lookup(fp)
	if ok {
		if c.onHit != nil {
			c.onHit(idx)
		}
	} else if c.onMiss != nil {
		c.onMiss(idx)
	}
	return d, ok
}

// Add installs a decision for fp, acquiring a reference to fp.Cell for the
// lifetime of the stored entry. Add evicts low-popularity entries if the
// shard is at capacity before inserting.
func (c *Cache) Add(fp fingerprint.Fingerprint, d Decision) {
	s, idx := c.shardFor(fp)
	owned := fingerprint.Fingerprint{
		UID:      fp.UID,
		Cell:     fp.Cell.Acquire(),
		Category: fp.Category,
		Owner:    fp.Owner,
		Action:   fp.Action,
	}
	s.add(c, idx, owned, d)
}

// ShardLen returns the number of live entries in shard idx. Used by tests.
func (c *Cache) ShardLen(idx int) int {
	return len(c.shards[idx].snapshot())
}

// ShardCount reports how many shards the cache was constructed with.
func (c *Cache) ShardCount() int { return len(c.shards) }

/* -------------------------------------------------------------------------
   shard
   ------------------------------------------------------------------------- */

var emptySnapshot = []*entry{}

type shard struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]*entry]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

func (s *shard) snapshot() []*entry {
	p := s.entries.Load()
	if p == nil {
		return emptySnapshot
	}
	return *p
}

func (s *shard) lookup(fp fingerprint.Fingerprint) (Decision, bool) {
	for _, e := range s.snapshot() {
		if e.fp.Equivalent(fp) {
			e.popularity.Add(1)
			s.hits.Add(1)
			return e.decision, true
		}
	}
	s.misses.Add(1)
	return Decision{}, false
}

// add implements the evict-if-at-capacity (average popularity, <= evicted,
// average itself included), then replace-in-place-or-insert-at-head
// algorithm, published as one new immutable snapshot.
func (s *shard) add(c *Cache, idx int, fp fingerprint.Fingerprint, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot()
	survivors := old

	if len(old) >= c.capacity {
		var sum uint64
		for _, e := range old {
			sum += uint64(e.popularity.Load())
		}
		avg := sum / uint64(len(old)) // integer division, ties (popularity == avg) are evicted too

		survivors = make([]*entry, 0, len(old))
		evicted := 0
		for _, e := range old {
			if uint64(e.popularity.Load()) > avg {
				survivors = append(survivors, e)
			} else {
				e.fp.Cell.Release()
				evicted++
			}
		}
		s.evictions.Add(uint64(evicted))
		if c.onEvict != nil && evicted > 0 {
			c.onEvict(idx, evicted)
		}
	}

	for i, e := range survivors {
		if e.fp.Equivalent(fp) {
			// Replace payload "in place": publish a fresh node at the same
			// position. Existing lookups that already loaded the prior
			// snapshot keep seeing the old decision until they load again —
			// an RCU-style read-without-locking guarantee, with the GC standing
			// in for deferred reclamation of the superseded node.
			replaced := make([]*entry, len(survivors))
			copy(replaced, survivors)
			ne := &entry{fp: e.fp, decision: d}
			ne.popularity.Store(e.popularity.Load())
			replaced[i] = ne
			fp.Cell.Release() // caller's fresh reference isn't needed; node keeps the old one
			next := replaced
			s.entries.Store(&next)
			return
		}
	}

	// Not found: insert at head with initial popularity 1.
	next := make([]*entry, 0, len(survivors)+1)
	ne := &entry{fp: fp, decision: d}
	ne.popularity.Store(1)
	next = append(next, ne)
	next = append(next, survivors...)
	s.entries.Store(&next)
}

// Stats returns the shard's atomic hit/miss/eviction counters.
func (c *Cache) Stats(idx int) (hits, misses, evictions uint64) {
	s := c.shards[idx]
	return s.hits.Load(), s.misses.Load(), s.evictions.Load()
}

// Release must be called once the Cache is no longer needed, dropping every
// surviving entry's cell reference.
func (c *Cache) Release() {
	for _, s := range c.shards {
		for _, e := range s.snapshot() {
			e.fp.Cell.Release()
		}
		s.entries.Store(&emptySnapshot)
	}
}
