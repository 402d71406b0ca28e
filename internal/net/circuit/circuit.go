// Package circuit wraps sony/gobreaker with per-source breakers. A source
// opens after a run of consecutive failures and admits a single probe after
// the cooldown.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a source's breaker rejects the call without
// attempting it.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker tuning shared by all sources.
type Config struct {
	// FailureThreshold opens the breaker after this many consecutive
	// failures.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before admitting a probe.
	Cooldown time.Duration
}

// Breaker guards calls against one source.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker for the named source.
func NewBreaker(name string, cfg Config) *Breaker {
	threshold := uint32(cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 1
	}
	return &Breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1, // single half-open probe
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// Call runs fn through the breaker. An open breaker returns ErrOpen without
// invoking fn; fn's own error passes through and counts as a failure.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the breaker state as one of "closed", "open", "half-open".
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Counts returns the raw gobreaker counters.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }

// Manager holds one breaker per source key, built on demand.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewManager creates a manager applying cfg to every source.
func NewManager(cfg Config) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

func (m *Manager) get(source string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[source]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[source]; ok {
		return b
	}
	b = NewBreaker(source, m.cfg)
	m.breakers[source] = b
	return b
}

// Call runs fn through the source's breaker.
func (m *Manager) Call(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	return m.get(source).Call(ctx, fn)
}

// State returns the state of the source's breaker.
func (m *Manager) State(source string) string {
	return m.get(source).State()
}

// States returns the state of every known breaker.
func (m *Manager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]string, len(m.breakers))
	for source, b := range m.breakers {
		states[source] = b.State()
	}
	return states
}
