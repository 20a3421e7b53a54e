// Package floorheating drives the thermostat adapter in step with the sauna
// MCB, and polls it periodically for status (spec.md §4.F). Like
// internal/ventilator, a Controller is single-threaded by convention — every
// method is only ever called from the supervisor's event loop.
package floorheating

import (
	"context"
	"log"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/clock"
)

// ownerName tags every timer this package arms, matching the Owner switch
// in supervisor.handleTimerFired.
const ownerName = "floorheating"

// Options configures a Controller from config.Config's floorHeating
// section.
type Options struct {
	TargetOnC  float64
	TargetOffC float64
	PollEvery  time.Duration
	Timeout    time.Duration
}

// Controller wraps adapters.Thermostat.
type Controller struct {
	thermostat adapters.Thermostat
	clk        *clock.Service
	opts       Options

	pollHandle clock.Handle
	polling    bool

	last adapters.FloorHeatingState
}

// New creates a Controller and arms its periodic status poll.
func New(thermostat adapters.Thermostat, clk *clock.Service, opts Options) *Controller {
	c := &Controller{thermostat: thermostat, clk: clk, opts: opts}
	c.pollHandle = clk.EveryOwned(opts.PollEvery, ownerName)
	c.polling = true
	return c
}

// OnSaunaOn sets manual mode at the configured "on" target. Best-effort: a
// failure is reported to the caller but never blocks the MCB transition that
// triggered it.
func (c *Controller) OnSaunaOn(ctx context.Context) error {
	return c.apply(ctx, c.opts.TargetOnC)
}

// OnSaunaOff sets manual mode at the configured standby target.
func (c *Controller) OnSaunaOff(ctx context.Context) error {
	return c.apply(ctx, c.opts.TargetOffC)
}

func (c *Controller) apply(ctx context.Context, targetC float64) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if err := c.thermostat.SetMode(ctx, adapters.FloorHeatingModeManual); err != nil {
		log.Printf("floorheating: set mode failed: %v", err)
		return err
	}
	if err := c.thermostat.SetTargetC(ctx, targetC); err != nil {
		log.Printf("floorheating: set target failed: %v", err)
		return err
	}
	return nil
}

// OnTimerFired refreshes status from a periodic poll tick. Returns true if
// the handle belonged to this controller's poll timer (a poll was attempted),
// so the caller knows whether to publish a new snapshot; a failed poll still
// returns true and leaves Last unchanged.
func (c *Controller) OnTimerFired(ctx context.Context, h clock.Handle) bool {
	if !c.polling || h != c.pollHandle {
		return false
	}
	c.refresh(ctx)
	return true
}

func (c *Controller) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	state, err := c.thermostat.Status(ctx)
	if err != nil {
		log.Printf("floorheating: status poll failed: %v", err)
		return
	}
	c.last = state
}

// Last returns the most recently polled status.
func (c *Controller) Last() adapters.FloorHeatingState {
	return c.last
}

// StopPolling cancels the periodic status poll. Used on supervisor
// shutdown.
func (c *Controller) StopPolling() {
	if c.polling {
		c.clk.Cancel(c.pollHandle)
		c.polling = false
	}
}
