// Package store holds the latest known value of every metric identity.
// It reconciles asynchronous per-target plugin writes with concurrent
// scrape-path reads.
package store

import (
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/netobserv-lab/gnmi-exporter/internal/model"
	"go.uber.org/zap"
)

// ErrStaleWrite is returned for a write whose timestamp is strictly
// older than the stored entry. The caller logs and drops it; this
// guards against reordering across reconnects.
var ErrStaleWrite = errors.New("store: write older than stored entry")

// ErrInvalidSample rejects samples missing a name or timestamp.
var ErrInvalidSample = errors.New("store: invalid sample")

const shardCount = 32

// entry is immutable once linked into a shard map; updates replace the
// pointer, so a concurrent reader always sees a complete
// (value, timestamp, labels) triple.
type entry struct {
	sample  model.Sample
	target  string
	plugin  string
	stale   bool
	written time.Time // receipt time, drives staleness eviction
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Store is a sharded latest-value cache keyed by metric identity.
type Store struct {
	shards [shardCount]*shard
	logger *zap.Logger
	now    model.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a deterministic clock for tests.
func WithClock(clock model.Clock) Option {
	return func(s *Store) { s.now = clock }
}

// New creates an empty store.
func New(logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		logger: logger,
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return s.shards[h.Sum32()%shardCount]
}

// WriteOwned upserts a sample with plugin provenance. Last write wins
// by sample timestamp; strictly older writes are rejected with
// ErrStaleWrite and leave the stored value untouched.
func (s *Store) WriteOwned(target, plugin string, sample model.Sample) error {
	if sample.Name == "" || sample.Timestamp.IsZero() {
		return ErrInvalidSample
	}

	identity := sample.Identity()
	sample.Labels = sample.Labels.Clone()
	next := &entry{
		sample:  sample,
		target:  target,
		plugin:  plugin,
		written: s.now(),
	}

	sh := s.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.entries[identity]; ok && sample.Timestamp.Before(cur.sample.Timestamp) {
		return ErrStaleWrite
	}
	sh.entries[identity] = next
	return nil
}

// Write implements model.SampleWriter without plugin provenance.
func (s *Store) Write(target string, sample model.Sample) error {
	return s.WriteOwned(target, "", sample)
}

// Snapshot returns a point-in-time consistent copy of all entries,
// ordered by identity. Critical sections are per shard, so writers are
// never blocked for the whole scan.
func (s *Store) Snapshot() []model.StoreEntry {
	var out []model.StoreEntry
	keys := make([]string, 0, 64)
	byKey := make(map[string]model.StoreEntry, 64)

	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			keys = append(keys, k)
			byKey[k] = model.StoreEntry{
				Sample: e.sample,
				Target: e.target,
				Plugin: e.plugin,
				Stale:  e.stale,
			}
		}
		sh.mu.RUnlock()
	}

	sort.Strings(keys)
	out = make([]model.StoreEntry, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

// Len reports the number of stored identities.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// MarkTargetStale flags every entry owned by target. Flagged entries
// stay visible so a scrape can tell "unreachable" from "never seen".
func (s *Store) MarkTargetStale(target string) {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.target != target || e.stale {
				continue
			}
			flagged := *e
			flagged.stale = true
			sh.entries[k] = &flagged
			n++
		}
		sh.mu.Unlock()
	}
	if n > 0 {
		s.logger.Info("marked target entries stale",
			zap.String("target", target), zap.Int("entries", n))
	}
}

// EvictTarget removes every entry owned by target.
func (s *Store) EvictTarget(target string) {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.target == target {
				delete(sh.entries, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	if n > 0 {
		s.logger.Info("evicted target entries",
			zap.String("target", target), zap.Int("entries", n))
	}
}

// evictOlderThan removes entries not written since cutoff. It returns
// the number removed; the sweeper calls this on its cadence so devices
// that renumber label sets cannot grow the store without bound.
func (s *Store) evictOlderThan(cutoff time.Time) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.written.Before(cutoff) {
				delete(sh.entries, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}
