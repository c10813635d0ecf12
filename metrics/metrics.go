// Package metrics provides an in-memory core.MetricsSink with a counter
// snapshot, sufficient for tests and single-process deployments.
package metrics

import (
	"sync"

	"github.com/hupe1980/deskmesh/core"
)

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests       int
	ErrorsByKind   map[core.ErrorKind]int
	CacheHits      int
	CacheMisses    int
	CacheEvictions int
}

// InMemorySink counts orchestration events. Safe for concurrent use.
type InMemorySink struct {
	mu        sync.Mutex
	requests  int
	errors    map[core.ErrorKind]int
	hits      int
	misses    int
	evictions int
}

// NewInMemorySink constructs an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{errors: make(map[core.ErrorKind]int)}
}

// RecordRequest implements core.MetricsSink.
func (s *InMemorySink) RecordRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
}

// RecordError implements core.MetricsSink.
func (s *InMemorySink) RecordError(kind core.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[kind]++
}

// RecordCacheHit implements core.MetricsSink.
func (s *InMemorySink) RecordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
}

// RecordCacheMiss implements core.MetricsSink.
func (s *InMemorySink) RecordCacheMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
}

// RecordCacheEviction implements core.MetricsSink.
func (s *InMemorySink) RecordCacheEviction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions++
}

// Snapshot returns a copy of all counters.
func (s *InMemorySink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	errors := make(map[core.ErrorKind]int, len(s.errors))
	for k, v := range s.errors {
		errors[k] = v
	}
	return Snapshot{
		Requests:       s.requests,
		ErrorsByKind:   errors,
		CacheHits:      s.hits,
		CacheMisses:    s.misses,
		CacheEvictions: s.evictions,
	}
}
