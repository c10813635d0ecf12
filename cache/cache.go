// Package cache provides a bounded TTL cache shared by several framework
// components (response cache, knowledge-query cache, research-result cache).
//
// Expiry is lazy: an entry older than its TTL is deleted and treated as a
// miss on the read path. The cache is bounded: when full, Set evicts the
// single globally-oldest entry (by insertion timestamp) across the whole
// manager instance, not per namespace. Hit, miss and eviction counters are
// tracked for observability.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/deskmesh/core"
)

// keyPrefixLen bounds the normalized content portion of a cache key so
// semantically identical queries collide deliberately.
const keyPrefixLen = 64

// Options configure a Manager.
type Options struct {
	// DefaultTTL applies to entries stored via Set. Zero means 5 minutes.
	DefaultTTL time.Duration
	// MaxEntries bounds the cache size. Zero means 500.
	MaxEntries int
	// Metrics receives eviction events. Defaults to a no-op sink; the
	// private counters are kept either way.
	Metrics core.MetricsSink
}

// Stats is a point-in-time snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Manager is a mutex-protected bounded TTL cache. Entries are owned
// exclusively by the Manager instance that created them; values are never
// shared by reference across instances.
type Manager struct {
	mu      sync.Mutex
	entries map[string]entry
	opts    Options

	hits      uint64
	misses    uint64
	evictions uint64

	// now is swappable for deterministic expiry tests.
	now func() time.Time
}

// New constructs a Manager.
func New(optFns ...func(o *Options)) *Manager {
	opts := Options{
		DefaultTTL: 5 * time.Minute,
		MaxEntries: 500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 500
	}
	if opts.Metrics == nil {
		opts.Metrics = core.NoOpMetrics{}
	}
	return &Manager{
		entries: make(map[string]entry),
		opts:    opts,
		now:     time.Now,
	}
}

// Key builds a namespaced cache key from free-form content. Normalization
// lowercases, trims and collapses whitespace before truncating to a fixed
// prefix length.
func Key(namespace, content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(content))), " ")
	if len(normalized) > keyPrefixLen {
		normalized = normalized[:keyPrefixLen]
	}
	return namespace + ":" + normalized
}

// Get returns the value stored under key. Expired entries are evicted and
// reported as a miss.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		m.misses++
		return nil, false
	}

	m.hits++

	return e.value, true
}

// Set stores value under key with the manager's default TTL.
func (m *Manager) Set(key string, value any) {
	m.SetTTL(key, value, m.opts.DefaultTTL)
}

// SetTTL stores value under key with an explicit TTL. When the cache is at
// capacity the single oldest entry is evicted before insert.
func (m *Manager) SetTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.opts.DefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.opts.MaxEntries {
		m.evictOldestLocked()
	}

	m.entries[key] = entry{value: value, createdAt: m.now(), ttl: ttl}
}

// Has reports whether a live (non-expired) entry exists for key without
// counting a hit or miss.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return false
	}

	return true
}

// Delete removes the entry stored under key, if any.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of stored entries, expired ones included until
// their lazy eviction.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns a snapshot of the cache counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Hits: m.hits, Misses: m.misses, Evictions: m.evictions, Entries: len(m.entries)}
}

// evictOldestLocked removes the entry with the oldest insertion timestamp.
// Caller must hold the lock.
func (m *Manager) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range m.entries {
		if !found || e.createdAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.createdAt, true
		}
	}
	if found {
		delete(m.entries, oldestKey)
		m.evictions++
		m.opts.Metrics.RecordCacheEviction()
	}
}
