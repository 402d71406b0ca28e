// Package ratelimit paces outbound collector traffic. Each source gets a
// token bucket sized for one request per configured interval, so consecutive
// fetches against the same upstream are spaced at least that far apart.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between requests to a single source.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewLimiter creates a limiter admitting one request per interval. A zero or
// negative interval admits everything.
func NewLimiter(interval time.Duration) *Limiter {
	lim := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Limiter{limiter: lim, interval: interval}
}

// Wait blocks until the next request is admitted or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request would be admitted right now, consuming the
// slot when it is.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration { return l.interval }

// Stats describes the current pacing state of one limiter.
type Stats struct {
	Interval        time.Duration `json:"interval"`
	TokensAvailable float64       `json:"tokens_available"`
	NextAllowedIn   time.Duration `json:"next_allowed_in"`
}

// Stats returns the current pacing state.
func (l *Limiter) Stats() Stats {
	res := l.limiter.Reserve()
	delay := res.Delay()
	res.Cancel()
	return Stats{
		Interval:        l.interval,
		TokensAvailable: l.limiter.Tokens(),
		NextAllowedIn:   delay,
	}
}

// Manager holds one limiter per source key. Unknown sources are admitted
// immediately.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	interval time.Duration
}

// NewManager creates a manager that builds limiters on demand with the given
// default interval.
func NewManager(defaultInterval time.Duration) *Manager {
	return &Manager{
		limiters: make(map[string]*Limiter),
		interval: defaultInterval,
	}
}

// SetSource installs a limiter with a source-specific interval.
func (m *Manager) SetSource(source string, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[source] = NewLimiter(interval)
}

func (m *Manager) get(source string) *Limiter {
	m.mu.RLock()
	lim, ok := m.limiters[source]
	m.mu.RUnlock()
	if ok {
		return lim
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[source]; ok {
		return lim
	}
	lim = NewLimiter(m.interval)
	m.limiters[source] = lim
	return lim
}

// Wait blocks until the source admits the next request or ctx is cancelled.
func (m *Manager) Wait(ctx context.Context, source string) error {
	return m.get(source).Wait(ctx)
}

// Allow reports whether the source admits a request right now.
func (m *Manager) Allow(source string) bool {
	return m.get(source).Allow()
}

// Stats returns pacing state per source.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]Stats, len(m.limiters))
	for source, lim := range m.limiters {
		stats[source] = lim.Stats()
	}
	return stats
}
