package ventilator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/clock"
)

type fakeRelay struct {
	mu     sync.Mutex
	calls  []bool
	status bool
	failOn *bool // if non-nil, Set(*failOn) returns an error
}

func (f *fakeRelay) Set(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil && *f.failOn == on {
		return context.DeadlineExceeded
	}
	f.calls = append(f.calls, on)
	f.status = on
	return nil
}

func (f *fakeRelay) Status(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeRelay) Close() error { return nil }

func (f *fakeRelay) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRelay) lastCall() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testOptions() Options {
	return Options{
		DelayOff:  time.Minute,
		KeepAlive: time.Minute,
		Timeout:   time.Second,
	}
}

func TestOnMcbOnStartsKeepAliveAndTurnsRelayOn(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())

	if c.State() != Running {
		t.Errorf("state = %v, want Running", c.State())
	}
	if relay.callCount() != 1 || !relay.lastCall() {
		t.Error("expected relay turned on")
	}
	if !c.hasKeepAlive {
		t.Error("expected keep-alive timer to be armed")
	}
}

func TestOnMcbOffWithRelayOnSchedulesDelayedOff(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	c.OnMcbOff(context.Background())

	if c.State() != Cooling {
		t.Errorf("state = %v, want Cooling", c.State())
	}
	if !c.hasDelayedOff {
		t.Error("expected delayed-off timer to be armed")
	}
	if !c.hasKeepAlive {
		t.Error("expected keep-alive to still be running during cooling")
	}
}

func TestOnMcbOffWithRelayObservedOffStopsImmediately(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	// Simulate the relay having been observed off out of band.
	off := false
	c.relayIsOn = &off

	c.OnMcbOff(context.Background())

	if c.State() != Idle {
		t.Errorf("state = %v, want Idle", c.State())
	}
	if c.hasKeepAlive || c.hasDelayedOff {
		t.Error("expected both timers cleared")
	}
}

func TestMcbOnDuringCoolingCancelsDelayedOff(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	c.OnMcbOff(context.Background())
	c.OnMcbOn(context.Background())

	if c.State() != Running {
		t.Errorf("state = %v, want Running", c.State())
	}
	if c.hasDelayedOff {
		t.Error("expected delayed-off to be cancelled")
	}
}

func TestDelayedOffFireTurnsRelayOffAndStopsKeepAlive(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	c.OnMcbOff(context.Background())

	handle := c.delayedOffHandle
	c.OnTimerFired(context.Background(), handle)

	if c.State() != Idle {
		t.Errorf("state = %v, want Idle", c.State())
	}
	if c.hasKeepAlive || c.hasDelayedOff {
		t.Error("expected both timers cleared after delayed-off fires")
	}
	if relay.lastCall() != false {
		t.Error("expected the relay's last command to be off")
	}
}

func TestKeepAliveTickCyclesRelayAndToleratesFailure(t *testing.T) {
	failOn := true
	relay := &fakeRelay{failOn: &failOn}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background()) // relay.Set(true) fails, relayIsOn stays nil
	handle := c.keepAliveHandle

	c.OnTimerFired(context.Background(), handle)

	// Keep-alive ticked (off succeeded, on failed) without panicking or
	// altering the state machine.
	if c.State() != Running {
		t.Errorf("state = %v, want Running", c.State())
	}
	if !c.hasKeepAlive {
		t.Error("expected keep-alive to remain armed despite relay failure")
	}
}

func TestOnTimerFiredIgnoresUnknownHandle(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	before := c.State()

	c.OnTimerFired(context.Background(), clock.Handle{})

	if c.State() != before {
		t.Error("expected state unchanged for an unrelated timer handle")
	}
}

func TestStopAllClearsState(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	c.OnMcbOff(context.Background())
	c.StopAll()

	if c.State() != Idle {
		t.Errorf("state = %v, want Idle", c.State())
	}
	if c.hasKeepAlive || c.hasDelayedOff {
		t.Error("expected StopAll to clear both timers")
	}
}

func TestSummaryReportsDelayedOffRemaining(t *testing.T) {
	relay := &fakeRelay{}
	clk := clock.New(func(clock.Event) {})
	c := New(relay, clk, testOptions())

	c.OnMcbOn(context.Background())
	c.OnMcbOff(context.Background())

	s := c.Summary()
	if !s.HasDelayedOff {
		t.Error("expected HasDelayedOff true")
	}
	if s.DelayedOffRemainingMs <= 0 {
		t.Error("expected a positive remaining duration")
	}
	if !s.KeepAliveActive {
		t.Error("expected KeepAliveActive true")
	}
}
