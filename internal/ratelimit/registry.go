package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// providerDefault is the window applied to providers without an entry in
// defaults, matching the broker's most restrictive published quota.
var providerDefault = Window{Rate: 19, Period: time.Second}

// Window is a limiter configuration: Rate events per Period.
type Window struct {
	Rate   int
	Period time.Duration
}

var defaults = map[string]Window{
	"kis":   {Rate: 19, Period: time.Second},
	"upbit": {Rate: 10, Period: time.Second},
}

// Registry maps "<provider>|<key>" to its limiter. Limiters are created on
// first use and live for the process lifetime.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Get returns the limiter for (provider, key), creating it on first call.
// An explicit window overrides the provider default; the override only
// applies at creation time.
func (r *Registry) Get(provider, key string, window ...Window) *Limiter {
	name := provider + "|" + key

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[name]; ok {
		return l
	}

	w := providerDefault
	if d, ok := defaults[provider]; ok {
		w = d
	}
	if len(window) > 0 {
		w = window[0]
	}

	l := NewLimiter(name, w.Rate, w.Period)
	r.limiters[name] = l
	return l
}

// Reset clears the registry. Test-only; in-flight waiters keep their old
// limiter until they return.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]*Limiter)
}

// Snapshot returns stats for every registered limiter.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(limiters))
	for _, l := range limiters {
		stats = append(stats, l.Stats())
	}
	return stats
}

// ErrRetryBudgetExhausted tags the error a caller raises when its retry
// budget is spent on rate-limit responses; the provider transport wraps it
// under every attempt answered with HTTP 429. The limiter itself never
// returns it: Acquire only delays.
type ErrRetryBudgetExhausted struct {
	Limiter string
	Retries int
}

func (e *ErrRetryBudgetExhausted) Error() string {
	return fmt.Sprintf("rate limit retry budget exhausted for %s after %d attempts", e.Limiter, e.Retries)
}
