package telemetry

import (
	"math/rand/v2"
	"sync"
)

const shardCount = 16

// shard holds one stripe of a store. Durations and counters change together
// under mu, so a shard is always internally consistent.
type shard struct {
	mu        sync.Mutex
	durations []float64
	successes int64
	failures  int64
}

// store accumulates samples for a single category. Writers pick a random
// shard to spread lock contention; snapshots merge every shard.
type store struct {
	shards [shardCount]*shard
}

// StoreSnapshot is an immutable copy of a store's contents.
type StoreSnapshot struct {
	Durations []float64
	Successes int64
	Failures  int64
}

func newStore() *store {
	s := &store{}
	for i := range s.shards {
		s.shards[i] = &shard{}
	}
	return s
}

func (s *store) record(durationMs float64, outcome Outcome) {
	sh := s.shards[rand.IntN(shardCount)]
	sh.mu.Lock()
	sh.durations = append(sh.durations, durationMs)
	if outcome == Failure {
		sh.failures++
	} else {
		sh.successes++
	}
	sh.mu.Unlock()
}

func (s *store) snapshot() StoreSnapshot {
	var snap StoreSnapshot
	for _, sh := range s.shards {
		sh.mu.Lock()
		snap.Durations = append(snap.Durations, sh.durations...)
		snap.Successes += sh.successes
		snap.Failures += sh.failures
		sh.mu.Unlock()
	}
	return snap
}

func (s *store) clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.durations = nil
		sh.successes = 0
		sh.failures = 0
		sh.mu.Unlock()
	}
}
