// Package ventilator implements the delayed-off timer and keep-alive cycler
// that sit between the supervisor and the ventilator relay (spec.md §4.E).
// Like the supervisor itself, a Controller is single-threaded by convention:
// every method here is only ever called from the supervisor's event loop, so
// it carries no mutex of its own — the same shape as internal/logic's old
// Detector, which was likewise driven exclusively from one goroutine and
// held no lock.
package ventilator

import (
	"context"
	"log"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/clock"
)

// State is the controller's coarse state, named for the timers active.
type State int

const (
	Idle State = iota
	Running
	Cooling
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Cooling:
		return "cooling"
	default:
		return "idle"
	}
}

// keepAliveSettleDelay is how long the relay stays off mid-cycle during a
// keep-alive tick, per spec.md §4.E.
const keepAliveSettleDelay = time.Second

// ownerName tags every timer this package arms, matching the Owner switch
// in supervisor.handleTimerFired.
const ownerName = "ventilator"

// Options configures a Controller. Durations come from config.Config's
// ventilator section (minutes, per spec.md §6), converted once at
// construction.
type Options struct {
	DelayOff  time.Duration
	KeepAlive time.Duration
	Timeout   time.Duration
}

// Status is the public summary reported into the live snapshot.
type Status struct {
	Enabled               bool
	RelayIsOn             *bool
	HasDelayedOff         bool
	DelayedOffRemainingMs int64
	KeepAliveActive       bool
}

// Controller drives adapters.VentilatorRelay according to the state machine
// in spec.md §4.E.
type Controller struct {
	relay adapters.VentilatorRelay
	clk   *clock.Service
	opts  Options

	state     State
	relayIsOn *bool // nil means unknown, per the ventilator logical state in spec.md §3

	hasDelayedOff      bool
	delayedOffHandle   clock.Handle
	delayedOffDeadline time.Time

	hasKeepAlive    bool
	keepAliveHandle clock.Handle
}

// New creates a Controller in the Idle state.
func New(relay adapters.VentilatorRelay, clk *clock.Service, opts Options) *Controller {
	return &Controller{relay: relay, clk: clk, opts: opts}
}

// OnMcbOn cancels any pending delayed-off, turns the relay on, and starts
// the keep-alive cycler if it is not already running.
func (c *Controller) OnMcbOn(ctx context.Context) {
	c.cancelDelayedOff()

	if err := c.setRelay(ctx, true); err != nil {
		log.Printf("ventilator: turn-on failed: %v", err)
	}

	if !c.hasKeepAlive {
		c.keepAliveHandle = c.clk.EveryOwned(c.opts.KeepAlive, ownerName)
		c.hasKeepAlive = true
	}
	c.state = Running
}

// OnMcbOff schedules the delayed-off timer if the relay is observed on (or
// unknown), re-arming it if one is already pending. If the relay is
// observed off, the keep-alive cycler stops immediately.
func (c *Controller) OnMcbOff(ctx context.Context) {
	if c.relayIsOn != nil && !*c.relayIsOn {
		c.stopKeepAlive()
		c.state = Idle
		return
	}

	c.cancelDelayedOff()
	c.delayedOffHandle = c.clk.AfterOwned(c.opts.DelayOff, ownerName)
	c.hasDelayedOff = true
	c.delayedOffDeadline = c.clk.Now().Add(c.opts.DelayOff)
	c.state = Cooling
}

// OnTimerFired routes a fired timer handle to the delayed-off or keep-alive
// handler. Handles that belong to neither are ignored.
func (c *Controller) OnTimerFired(ctx context.Context, h clock.Handle) {
	switch h {
	case c.delayedOffHandle:
		if c.hasDelayedOff {
			c.fireDelayedOff(ctx)
		}
	case c.keepAliveHandle:
		if c.hasKeepAlive {
			c.keepAliveTick(ctx)
		}
	}
}

func (c *Controller) fireDelayedOff(ctx context.Context) {
	c.hasDelayedOff = false
	c.delayedOffDeadline = time.Time{}

	if err := c.setRelay(ctx, false); err != nil {
		log.Printf("ventilator: delayed-off relay command failed: %v", err)
	}
	c.stopKeepAlive()
	c.state = Idle
}

// keepAliveTick cycles the relay off then on, defeating any upstream
// auto-off. A failed call is logged and otherwise ignored — per spec.md
// §4.E it must never alter the state machine.
//
// This runs on the supervisor's single event-loop goroutine (OnTimerFired is
// only ever called from there), so the settle sleep stalls dispatch of any
// event that arrives during it. The bus queues those events rather than
// dropping them, so nothing is lost, just delayed by up to a second.
func (c *Controller) keepAliveTick(ctx context.Context) {
	if err := c.setRelay(ctx, false); err != nil {
		log.Printf("ventilator: keep-alive off failed: %v", err)
	}
	time.Sleep(keepAliveSettleDelay)
	if err := c.setRelay(ctx, true); err != nil {
		log.Printf("ventilator: keep-alive on failed: %v", err)
	}
}

// StopAll cancels both timers and returns to Idle. Used on supervisor
// shutdown.
func (c *Controller) StopAll() {
	c.cancelDelayedOff()
	c.stopKeepAlive()
	c.state = Idle
}

func (c *Controller) cancelDelayedOff() {
	if c.hasDelayedOff {
		c.clk.Cancel(c.delayedOffHandle)
		c.hasDelayedOff = false
		c.delayedOffDeadline = time.Time{}
	}
}

func (c *Controller) stopKeepAlive() {
	if c.hasKeepAlive {
		c.clk.Cancel(c.keepAliveHandle)
		c.hasKeepAlive = false
	}
}

func (c *Controller) setRelay(ctx context.Context, on bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	err := c.relay.Set(ctx, on)
	if err == nil {
		v := on
		c.relayIsOn = &v
	}
	return err
}

// Summary reports the controller's current state for the live snapshot.
func (c *Controller) Summary() Status {
	s := Status{
		Enabled:         true,
		RelayIsOn:       c.relayIsOn,
		HasDelayedOff:   c.hasDelayedOff,
		KeepAliveActive: c.hasKeepAlive,
	}
	if c.hasDelayedOff {
		remaining := c.delayedOffDeadline.Sub(c.clk.Now())
		if remaining < 0 {
			remaining = 0
		}
		s.DelayedOffRemainingMs = remaining.Milliseconds()
	}
	return s
}

// State reports the controller's coarse state, for tests.
func (c *Controller) State() State {
	return c.state
}
