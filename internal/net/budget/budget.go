// Package budget enforces a daily API unit quota. Quota-metered APIs charge
// different unit costs per endpoint, so callers spend units rather than
// counting requests. The counter resets at a fixed UTC hour.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted matches any quota-exhaustion error via errors.Is.
var ErrExhausted = errors.New("daily quota exhausted")

// ExhaustedError reports a rejected spend with the reset time.
type ExhaustedError struct {
	Name     string
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted for %s: %d/%d units used, resets at %s",
		e.Name, e.Used, e.Limit, e.ResetsAt.UTC().Format("15:04 UTC"))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Stats is a point-in-time quota snapshot.
type Stats struct {
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Tracker meters spending against a daily unit limit. A non-positive limit
// disables metering entirely.
type Tracker struct {
	name      string
	limit     int64
	resetHour int

	mu        sync.Mutex
	used      int64
	lastReset time.Time

	now func() time.Time
}

// NewTracker creates a tracker named for its API, resetting at resetHour UTC.
func NewTracker(name string, limit int64, resetHour int) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	t := &Tracker{
		name:      name,
		limit:     limit,
		resetHour: resetHour,
		now:       time.Now,
	}
	t.lastReset = lastResetBefore(t.now().UTC(), resetHour)
	return t
}

func lastResetBefore(now time.Time, resetHour int) time.Time {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// rollover must be called with the mutex held.
func (t *Tracker) rollover() {
	now := t.now().UTC()
	if now.Sub(t.lastReset) >= 24*time.Hour {
		t.used = 0
		t.lastReset = lastResetBefore(now, t.resetHour)
	}
}

// Spend charges units against the quota. The charge is rejected whole when it
// would cross the limit, leaving the counter untouched.
func (t *Tracker) Spend(units int64) error {
	if t.limit <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	if t.used+units > t.limit {
		return &ExhaustedError{
			Name:     t.name,
			Used:     t.used,
			Limit:    t.limit,
			ResetsAt: t.lastReset.Add(24 * time.Hour),
		}
	}
	t.used += units
	return nil
}

// Remaining reports the units left before the next reset.
func (t *Tracker) Remaining() int64 {
	if t.limit <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.limit - t.used
}

// Stats reports the quota snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	return Stats{
		Limit:     t.limit,
		Used:      t.used,
		Remaining: t.limit - t.used,
		ResetsAt:  t.lastReset.Add(24 * time.Hour),
	}
}
