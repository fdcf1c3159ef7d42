// Package ratelimit provides per-endpoint sliding-window admission control.
//
// Unlike a token bucket, the window is exact: at any instant at most `rate`
// admissions fall inside the trailing `period`, with no boundary bursts.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/metrics"
)

// slack absorbs scheduling skew between sleep wakeup and window expiry.
const slack = 50 * time.Millisecond

// BlockFunc is invoked with the computed wait each time admission is
// deferred. Errors are logged and ignored; they never abort admission.
type BlockFunc func(wait time.Duration) error

// Limiter admits at most Rate events per Period using a timestamp deque.
type Limiter struct {
	name   string
	rate   int
	period time.Duration

	mu         sync.Mutex
	timestamps []time.Time

	totalRequests     int64
	throttledRequests int64
	totalWait         time.Duration
}

// NewLimiter creates a sliding-window limiter. rate must be positive and
// period non-zero; violations fall back to the conservative (1, 1s).
func NewLimiter(name string, rate int, period time.Duration) *Limiter {
	if rate <= 0 {
		rate = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Limiter{
		name:       name,
		rate:       rate,
		period:     period,
		timestamps: make([]time.Time, 0, rate),
	}
}

// Acquire blocks until the caller may proceed. It never refuses admission;
// each wait iteration is bounded by period+slack. onBlock may be nil.
//
// The wait duration is computed under the internal mutex, but onBlock runs
// and the sleep happens with the mutex released so that waiters interleave.
func (l *Limiter) Acquire(onBlock BlockFunc) {
	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)

		if len(l.timestamps) < l.rate {
			l.timestamps = append(l.timestamps, now)
			l.totalRequests++
			l.mu.Unlock()
			metrics.RateLimitAdmitted.WithLabelValues(l.name).Inc()
			return
		}

		oldest := l.timestamps[0]
		wait := oldest.Add(l.period).Sub(now) + slack
		l.throttledRequests++
		l.totalWait += wait
		l.mu.Unlock()

		metrics.RateLimitThrottled.WithLabelValues(l.name).Inc()
		metrics.RateLimitWaitSeconds.WithLabelValues(l.name).Add(wait.Seconds())

		if onBlock != nil {
			if err := onBlock(wait); err != nil {
				log.Warn().Err(err).Str("limiter", l.name).Msg("rate limit block callback failed")
			}
		}
		time.Sleep(wait)
	}
}

// prune drops timestamps that have left the window. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.period)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// Stats is a point-in-time snapshot of a limiter's counters.
type Stats struct {
	Name              string        `json:"name"`
	Rate              int           `json:"rate"`
	Period            time.Duration `json:"period"`
	InWindow          int           `json:"in_window"`
	TotalRequests     int64         `json:"total_requests"`
	ThrottledRequests int64         `json:"throttled_requests"`
	TotalWait         time.Duration `json:"total_wait"`
}

// Stats returns a snapshot copy; the live counters keep moving.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.prune(now)
	return Stats{
		Name:              l.name,
		Rate:              l.rate,
		Period:            l.period,
		InWindow:          len(l.timestamps),
		TotalRequests:     l.totalRequests,
		ThrottledRequests: l.throttledRequests,
		TotalWait:         l.totalWait,
	}
}

// ResetStats zeroes the counters without touching the window.
func (l *Limiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalRequests = 0
	l.throttledRequests = 0
	l.totalWait = 0
}
