// Package ratelimit implements sliding-window admission control keyed by
// (subject, action). Each check lazily prunes timestamps older than the
// window and admits only while the live count stays below the configured
// maximum. Rejections carry a wait-time estimate computed from the oldest
// live timestamp.
package ratelimit

import (
	"sync"
	"time"
)

// Well-known action keys registered by DefaultRegistry.
const (
	ActionKnowledgeCreate       = "knowledge_create"
	ActionKnowledgeRate         = "knowledge_rate"
	ActionConversationBurst     = "conversation_burst"
	ActionConversationSustained = "conversation_sustained"
)

// Config bounds admissions for one action type.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter is a mutex-protected sliding-window rate limiter. Windows are
// long-lived process state; stale subjects are pruned lazily on check.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string][]time.Time

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewLimiter constructs a Limiter for the given configuration.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the subject may proceed, recording the admission
// timestamp on success. Rejections leave the window untouched.
func (l *Limiter) Allow(subject string) bool {
	ok, _ := l.Check(subject)
	return ok
}

// Check behaves like Allow and additionally returns how long a rejected
// subject should wait before the oldest live timestamp leaves the window.
func (l *Limiter) Check(subject string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.pruneLocked(subject, now)

	if len(live) >= l.cfg.MaxRequests {
		retryAfter := l.cfg.Window - now.Sub(live[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	l.windows[subject] = append(live, now)

	return true, 0
}

// pruneLocked drops timestamps older than the window and stores the result.
// Caller must hold the lock. The returned slice is ordered oldest first.
func (l *Limiter) pruneLocked(subject string, now time.Time) []time.Time {
	window := l.windows[subject]
	cutoff := now.Add(-l.cfg.Window)

	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	live := window[i:]

	if len(live) == 0 {
		delete(l.windows, subject)
	} else if i > 0 {
		l.windows[subject] = live
	}

	return live
}

// Registry holds independently configured limiters addressed by action key.
// Callers pick the configuration by action; the subject is derived from the
// user and the action so distinct actions never share a window.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// DefaultRegistry returns a Registry preloaded with the framework's
// standard action budgets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ActionKnowledgeCreate, Config{MaxRequests: 10, Window: time.Hour})
	r.Register(ActionKnowledgeRate, Config{MaxRequests: 5, Window: 5 * time.Minute})
	r.Register(ActionConversationBurst, Config{MaxRequests: 3, Window: 5 * time.Second})
	r.Register(ActionConversationSustained, Config{MaxRequests: 10, Window: time.Minute})
	return r
}

// Register installs (or replaces) the limiter for an action.
func (r *Registry) Register(action string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[action] = NewLimiter(cfg)
}

// Check runs the admission check for (userID, action). Unregistered actions
// are admitted unconditionally.
func (r *Registry) Check(userID, action string) (bool, time.Duration) {
	r.mu.RLock()
	limiter, ok := r.limiters[action]
	r.mu.RUnlock()

	if !ok {
		return true, 0
	}

	return limiter.Check(userID + ":" + action)
}
