package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache hit/miss/mutation counters. Safe for concurrent use.
type Statistics struct {
	hits    int64
	misses  int64
	sets    int64
	deletes int64

	startOnce int64
	startTime int64 // unix nanos, set lazily on first use
}

func (s *Statistics) ensureStarted() {
	if atomic.CompareAndSwapInt64(&s.startOnce, 0, 1) {
		atomic.StoreInt64(&s.startTime, time.Now().UnixNano())
	}
}

// Hit records a cache hit.
func (s *Statistics) Hit() { s.ensureStarted(); atomic.AddInt64(&s.hits, 1) }

// Miss records a cache miss.
func (s *Statistics) Miss() { s.ensureStarted(); atomic.AddInt64(&s.misses, 1) }

// Set records a cache set operation.
func (s *Statistics) Set() { s.ensureStarted(); atomic.AddInt64(&s.sets, 1) }

// Delete records a cache delete operation.
func (s *Statistics) Delete() { atomic.AddInt64(&s.deletes, 1) }

// HitRatio returns hits / (hits + misses), or 0 if there have been no lookups.
func (s *Statistics) HitRatio() float64 {
	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// StatsSummary is an immutable snapshot of Statistics.
type StatsSummary struct {
	Hits     int64
	Misses   int64
	Sets     int64
	Deletes  int64
	HitRatio float64
}

// Summary returns a snapshot of the current counters.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:     atomic.LoadInt64(&s.hits),
		Misses:   atomic.LoadInt64(&s.misses),
		Sets:     atomic.LoadInt64(&s.sets),
		Deletes:  atomic.LoadInt64(&s.deletes),
		HitRatio: s.HitRatio(),
	}
}
