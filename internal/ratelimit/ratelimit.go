// Package ratelimit implements the per-kind cooldown gate guarding outbound
// operator notifications (spec.md §4.D). It is a small, explicit ledger —
// no token-bucket library reports the "time until allowed again" value the
// HTTP/snapshot surface needs, so this is hand-rolled on top of a
// mutex-protected map, in the same shape as internal/status's old Tracker.
package ratelimit

import (
	"sync"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// Decision is the outcome of an Allow check.
type Decision struct {
	Allowed     bool
	RemainingMs int64 // only meaningful when !Allowed
}

// Limiter enforces a minimum interval between sends of the same
// NotificationKind. Allow is pure and side-effect free; only MarkSent
// writes to the ledger, and callers must call it only after a successful
// send — denied attempts must never shift the window.
type Limiter struct {
	mu        sync.Mutex
	lastSent  map[adapters.NotificationKind]time.Time
	cooldowns map[adapters.NotificationKind]time.Duration
}

// DefaultCooldowns matches spec.md §4.D / §6.
func DefaultCooldowns() map[adapters.NotificationKind]time.Duration {
	return map[adapters.NotificationKind]time.Duration{
		adapters.SafetyShutdown:   60 * time.Second,
		adapters.TemperatureAlert: 300 * time.Second,
	}
}

// New creates a Limiter with the given per-kind cooldowns. Kinds absent
// from cooldowns are always allowed.
func New(cooldowns map[adapters.NotificationKind]time.Duration) *Limiter {
	return &Limiter{
		lastSent:  make(map[adapters.NotificationKind]time.Time),
		cooldowns: cooldowns,
	}
}

// Allow reports whether a notification of kind may be sent at now.
func (l *Limiter) Allow(kind adapters.NotificationKind, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	cooldown, tracked := l.cooldowns[kind]
	if !tracked {
		return Decision{Allowed: true}
	}

	last, ok := l.lastSent[kind]
	if !ok {
		return Decision{Allowed: true}
	}

	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, RemainingMs: (cooldown - elapsed).Milliseconds()}
}

// MarkSent records that a notification of kind was sent at now. Ledger
// entries are monotone non-decreasing: a MarkSent with an earlier now than
// the current entry is ignored, since the ledger only needs to track the
// most recent send.
func (l *Limiter) MarkSent(kind adapters.NotificationKind, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.lastSent[kind]; ok && !now.After(existing) {
		return
	}
	l.lastSent[kind] = now
}
