package ratelimit

import (
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

func TestAllowThenDeniedUntilCooldownElapses(t *testing.T) {
	l := New(DefaultCooldowns())
	t0 := time.Unix(1000, 0)

	d := l.Allow(adapters.SafetyShutdown, t0)
	if !d.Allowed {
		t.Fatal("expected first check to allow")
	}
	l.MarkSent(adapters.SafetyShutdown, t0)

	d = l.Allow(adapters.SafetyShutdown, t0.Add(30*time.Second))
	if d.Allowed {
		t.Fatal("expected denial inside cooldown window")
	}
	wantRemaining := (30 * time.Second).Milliseconds()
	if d.RemainingMs != wantRemaining {
		t.Errorf("remaining: got %d, want %d", d.RemainingMs, wantRemaining)
	}

	d = l.Allow(adapters.SafetyShutdown, t0.Add(60*time.Second))
	if !d.Allowed {
		t.Error("expected allow once the cooldown has fully elapsed")
	}
}

func TestDeniedAttemptsDoNotShiftWindow(t *testing.T) {
	l := New(DefaultCooldowns())
	t0 := time.Unix(1000, 0)

	l.MarkSent(adapters.SafetyShutdown, t0)

	// Checking Allow repeatedly must not itself move the window.
	for i := 0; i < 5; i++ {
		l.Allow(adapters.SafetyShutdown, t0.Add(10*time.Second))
	}

	d := l.Allow(adapters.SafetyShutdown, t0.Add(60*time.Second))
	if !d.Allowed {
		t.Error("expected allow exactly at cooldown boundary")
	}
}

func TestIndependentKinds(t *testing.T) {
	l := New(DefaultCooldowns())
	t0 := time.Unix(1000, 0)

	l.MarkSent(adapters.SafetyShutdown, t0)

	d := l.Allow(adapters.TemperatureAlert, t0.Add(time.Second))
	if !d.Allowed {
		t.Error("expected TemperatureAlert to be independent of SafetyShutdown's ledger entry")
	}
}

func TestUntrackedKindAlwaysAllowed(t *testing.T) {
	l := New(map[adapters.NotificationKind]time.Duration{})
	d := l.Allow(adapters.SafetyShutdown, time.Unix(0, 0))
	if !d.Allowed {
		t.Error("expected untracked kind to always be allowed")
	}
}

func TestMarkSentIsMonotone(t *testing.T) {
	l := New(DefaultCooldowns())
	later := time.Unix(2000, 0)
	earlier := time.Unix(1000, 0)

	l.MarkSent(adapters.SafetyShutdown, later)
	l.MarkSent(adapters.SafetyShutdown, earlier) // must be ignored

	d := l.Allow(adapters.SafetyShutdown, later.Add(30*time.Second))
	if d.Allowed {
		t.Error("expected ledger to retain the later timestamp despite the out-of-order MarkSent")
	}
}
