// Package supervisor holds the sauna supervisor's authoritative state and
// its single-consumer event loop (spec.md §4.H). Every state mutation and
// every decision happens on one goroutine; adapters, HTTP handlers, and the
// clock communicate solely by enqueuing events onto internal/bus. This is
// the same cooperative, lock-free shape cmd/boiler-sensor's runLoop uses to
// drive its own single consumer of GPIO ticks and signals.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/bus"
	"github.com/saunaworks/sauna-supervisor/internal/clock"
	"github.com/saunaworks/sauna-supervisor/internal/floorheating"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
	"github.com/saunaworks/sauna-supervisor/internal/ratelimit"
	"github.com/saunaworks/sauna-supervisor/internal/safety"
	"github.com/saunaworks/sauna-supervisor/internal/snapshot"
	"github.com/saunaworks/sauna-supervisor/internal/ventilator"
)

// McbStatusSource names which observation channel is authoritative for
// mutating mcb, per SPEC_FULL.md §5.1.
type McbStatusSource int

const (
	AuthoritativeDevice McbStatusSource = iota
	AuthoritativeMQTT
)

// Options configures a Supervisor at construction. Every duration here is
// an adapter-call deadline or a policy threshold named in spec.md §6.
type Options struct {
	AmperageThresholdA      float64
	SwitchOffCooldown       time.Duration
	TemperatureAlertCelsius float64
	McbCommandTimeout       time.Duration
	NotifierTimeout         time.Duration
	McbStatusSource         McbStatusSource
	FlicMapping             map[adapters.ButtonAction]adapters.FlicAction
}

// Supervisor is the single consumer of internal/bus. Construct with New and
// drive it with Run on its own goroutine.
type Supervisor struct {
	bus          *bus.Bus
	clk          *clock.Service
	broadcaster  *snapshot.Broadcaster
	mcbDevice    adapters.McbDevice
	notifier     adapters.Notifier
	ventilator   *ventilator.Controller
	floorHeating *floorheating.Controller
	limiter      *ratelimit.Limiter
	metrics      *metrics.Metrics
	opts         Options

	// Authoritative state. Mutated only from Run's goroutine.
	mcb             adapters.McbState
	lastPhases      *adapters.PhaseReading
	lastTemp        *adapters.TemperatureReading
	lastDoor        *adapters.DoorReading
	lastSwitchOffAt time.Time
	lastSafetyError string
	fallbackMcb     *adapters.McbState
	fallbackMcbAt   *time.Time
}

// New constructs a Supervisor in its initial Unknown-MCB state.
func New(
	b *bus.Bus,
	clk *clock.Service,
	broadcaster *snapshot.Broadcaster,
	mcbDevice adapters.McbDevice,
	notifier adapters.Notifier,
	vent *ventilator.Controller,
	fh *floorheating.Controller,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	opts Options,
) *Supervisor {
	return &Supervisor{
		bus:          b,
		clk:          clk,
		broadcaster:  broadcaster,
		mcbDevice:    mcbDevice,
		notifier:     notifier,
		ventilator:   vent,
		floorHeating: fh,
		limiter:      limiter,
		metrics:      m,
		opts:         opts,
		mcb:          adapters.McbUnknown,
	}
}

// Run drains the bus until a ShutdownEvent is processed or ctx is
// cancelled. It is the supervisor's only consumer of the bus and must only
// ever be called once.
func (s *Supervisor) Run(ctx context.Context) error {
	done := ctx.Done()
	for {
		ev, ok := s.bus.Pop(done)
		if !ok {
			return ctx.Err()
		}

		if shutdown, isShutdown := ev.(bus.ShutdownEvent); isShutdown {
			s.handleShutdown(ctx, shutdown)
			return nil
		}
		s.dispatch(ctx, ev)
	}
}

// dispatch is the top-level type switch. The default case is explicit and
// logged, per spec.md §9's discriminated-union dispatch rule.
func (s *Supervisor) dispatch(ctx context.Context, ev bus.Event) {
	switch e := ev.(type) {
	case bus.McbObservedEvent:
		s.handleMcbObserved(ctx, e)
	case bus.PhaseReadingEvent:
		s.handlePhaseReading(ctx, e)
	case bus.TemperatureReadingEvent:
		s.handleTemperatureReading(ctx, e)
	case bus.DoorReadingEvent:
		s.handleDoorReading(e)
	case bus.ButtonOccurredEvent:
		s.handleButtonEvent(ctx, e)
	case bus.OperatorCommandEvent:
		s.handleOperatorCommand(ctx, e)
	case bus.TimerFiredEvent:
		s.handleTimerFired(ctx, e)
	default:
		log.Printf("supervisor: dropping unrecognised event %T", ev)
	}
}

// handleMcbObserved implements spec.md §4.H's McbObserved row. Observations
// from the non-authoritative channel only update the diagnostic fallback
// field (SPEC_FULL.md §5.1) and never flip mcb.
func (s *Supervisor) handleMcbObserved(ctx context.Context, e bus.McbObservedEvent) {
	if !s.isAuthoritativeSource(e.Source) {
		state := e.State
		at := e.At
		s.fallbackMcb = &state
		s.fallbackMcbAt = &at
		s.publishSnapshot()
		return
	}

	if e.State == s.mcb {
		s.publishSnapshot()
		return
	}
	s.transitionMcb(ctx, e.State)
}

func (s *Supervisor) isAuthoritativeSource(src adapters.McbSource) bool {
	switch s.opts.McbStatusSource {
	case AuthoritativeMQTT:
		return src == adapters.SourceMQTT
	default:
		return src == adapters.SourceDevice
	}
}

// transitionMcb mutates mcb, publishes, and drives the peripheral
// controllers synchronously on this goroutine. "Fire-and-forget" per
// spec.md §4.H/§5 means the supervisor does not correlate a completion
// event back to the trigger — not that these calls run on a separate
// goroutine, which would race with the same controllers' TimerFired
// handling.
func (s *Supervisor) transitionMcb(ctx context.Context, newState adapters.McbState) {
	s.mcb = newState
	s.publishSnapshot()
	s.triggerPeripherals(ctx, newState)
}

func (s *Supervisor) triggerPeripherals(ctx context.Context, newState adapters.McbState) {
	switch newState {
	case adapters.McbOn:
		s.ventilator.OnMcbOn(ctx)
		if err := s.floorHeating.OnSaunaOn(ctx); err != nil {
			log.Printf("supervisor: floor-heating on-sauna-on failed: %v", err)
		}
		s.publishSnapshot()
	case adapters.McbOff:
		s.ventilator.OnMcbOff(ctx)
		if err := s.floorHeating.OnSaunaOff(ctx); err != nil {
			log.Printf("supervisor: floor-heating on-sauna-off failed: %v", err)
		}
		s.publishSnapshot()
	}
}

// handlePhaseReading implements spec.md §4.H's PhaseReading row.
func (s *Supervisor) handlePhaseReading(ctx context.Context, e bus.PhaseReadingEvent) {
	reading := e.PhaseReading
	s.lastPhases = &reading
	s.publishSnapshot()

	if s.mcb != adapters.McbOn {
		return
	}
	result := safety.CheckThresholds(reading, s.opts.AmperageThresholdA)
	if result.Exceeds {
		s.runSafetyShutdown(ctx, e.At, result.Offenders)
	}
}

// runSafetyShutdown implements spec.md §4.H's algorithm exactly, including
// the at-most-one-in-flight-trip cooldown gate.
func (s *Supervisor) runSafetyShutdown(ctx context.Context, now time.Time, offenders []safety.Offender) {
	if !s.lastSwitchOffAt.IsZero() && now.Sub(s.lastSwitchOffAt) < s.opts.SwitchOffCooldown {
		return
	}
	s.lastSwitchOffAt = now
	s.metrics.SafetyShutdown()

	cctx, cancel := context.WithTimeout(ctx, s.opts.McbCommandTimeout)
	err := s.mcbDevice.TurnOff(cctx)
	cancel()

	if err != nil {
		s.lastSafetyError = fmt.Sprintf("safety shutdown failed: %v", err)
		s.publishSnapshot()
		log.Printf("supervisor: safety shutdown MCB.turnOff failed: %v", err)
		return
	}

	s.lastSafetyError = ""
	s.mcb = adapters.McbOff
	s.publishSnapshot()
	s.triggerPeripherals(ctx, adapters.McbOff)

	body := fmt.Sprintf("Sauna safety shutdown: %s exceeded %.0fA", safety.FormatOffenders(offenders), s.opts.AmperageThresholdA)
	s.sendRateLimited(ctx, adapters.SafetyShutdown, now, body)
}

func (s *Supervisor) sendRateLimited(ctx context.Context, kind adapters.NotificationKind, now time.Time, body string) {
	decision := s.limiter.Allow(kind, now)
	if !decision.Allowed {
		log.Printf("supervisor: notification %s suppressed, %dms remaining in cooldown", kind, decision.RemainingMs)
		s.metrics.NotificationDenied(kind.String())
		return
	}

	nctx, cancel := context.WithTimeout(ctx, s.opts.NotifierTimeout)
	err := s.notifier.SendText(nctx, body)
	cancel()

	if err != nil {
		log.Printf("supervisor: notifier send failed for %s: %v", kind, err)
		return
	}
	s.limiter.MarkSent(kind, now)
}

// handleTemperatureReading implements spec.md §4.H's TemperatureReading
// row.
func (s *Supervisor) handleTemperatureReading(ctx context.Context, e bus.TemperatureReadingEvent) {
	reading := e.TemperatureReading
	s.lastTemp = &reading
	s.publishSnapshot()

	if reading.Celsius >= s.opts.TemperatureAlertCelsius {
		body := fmt.Sprintf("Sauna temperature alert: %.1f°C exceeds %.1f°C", reading.Celsius, s.opts.TemperatureAlertCelsius)
		s.sendRateLimited(ctx, adapters.TemperatureAlert, e.At, body)
	}
}

// handleDoorReading implements spec.md §4.H's DoorReading row.
func (s *Supervisor) handleDoorReading(e bus.DoorReadingEvent) {
	reading := e.DoorReading
	s.lastDoor = &reading
	s.publishSnapshot()
}

// handleButtonEvent resolves a normalised button action to a logical
// command via the configured Flic mapping, then behaves exactly as the
// corresponding OperatorCommand, per spec.md §4.H.
func (s *Supervisor) handleButtonEvent(ctx context.Context, e bus.ButtonOccurredEvent) {
	action, ok := s.opts.FlicMapping[e.Action]
	if !ok {
		action = adapters.FlicNone
	}

	switch action {
	case adapters.FlicToggle:
		s.applyMcbCommand(ctx, s.toggleTarget(), nil)
	case adapters.FlicForceOn:
		s.applyMcbCommand(ctx, adapters.McbOn, nil)
	case adapters.FlicForceOff:
		s.applyMcbCommand(ctx, adapters.McbOff, nil)
	case adapters.FlicNone:
		// No-op by configuration.
	}
}

func (s *Supervisor) toggleTarget() adapters.McbState {
	if s.mcb == adapters.McbOn {
		return adapters.McbOff
	}
	return adapters.McbOn
}

// handleOperatorCommand implements spec.md §4.H's OperatorCommand row and
// the eight logical commands in §6. Result is always written exactly once,
// to a buffered channel, before any peripheral side-effect runs — so the
// HTTP caller is never blocked on ventilator/floor-heating I/O.
func (s *Supervisor) handleOperatorCommand(ctx context.Context, e bus.OperatorCommandEvent) {
	switch e.Command {
	case adapters.CmdGetMcb:
		e.Result <- bus.CommandResult{Ok: true, Kind: e.Command.String(), Mcb: s.mcb}

	case adapters.CmdTurnOn:
		s.applyMcbCommand(ctx, adapters.McbOn, e.Result)
	case adapters.CmdForceOn:
		s.applyMcbCommand(ctx, adapters.McbOn, e.Result)

	case adapters.CmdTurnOff:
		s.applyMcbCommand(ctx, adapters.McbOff, e.Result)
	case adapters.CmdForceOff:
		s.applyMcbCommand(ctx, adapters.McbOff, e.Result)

	case adapters.CmdToggle:
		s.applyMcbCommand(ctx, s.toggleTarget(), e.Result)

	case adapters.CmdTestNotify:
		s.handleTestNotify(ctx, e.Result)

	case adapters.CmdHealth:
		e.Result <- bus.CommandResult{Ok: true, Kind: e.Command.String(), Message: "ok", Mcb: s.mcb}

	default:
		log.Printf("supervisor: dropping unrecognised operator command %v", e.Command)
		e.Result <- bus.CommandResult{Ok: false, Kind: e.Command.String(), Message: "unrecognised command"}
	}
}

// applyMcbCommand issues the device call for target, mutates state and
// publishes on success, then runs peripheral side-effects identically to
// handleMcbObserved's transition — all synchronously on the supervisor
// goroutine, per spec.md §4.H: "trigger peripheral side-effects identically
// to McbObserved for that new value." result may be nil (button-triggered
// commands have no HTTP caller waiting).
func (s *Supervisor) applyMcbCommand(ctx context.Context, target adapters.McbState, result chan<- bus.CommandResult) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.McbCommandTimeout)
	var err error
	if target == adapters.McbOn {
		err = s.mcbDevice.TurnOn(cctx)
	} else {
		err = s.mcbDevice.TurnOff(cctx)
	}
	cancel()

	if err != nil {
		log.Printf("supervisor: MCB command to %v failed: %v", target, err)
		if result != nil {
			result <- bus.CommandResult{Ok: false, Message: err.Error(), Mcb: s.mcb}
		}
		return
	}

	if result != nil {
		result <- bus.CommandResult{Ok: true, Mcb: target}
	}

	if target == s.mcb {
		return
	}
	s.transitionMcb(ctx, target)
}

func (s *Supervisor) handleTestNotify(ctx context.Context, result chan<- bus.CommandResult) {
	// TestNotify bypasses the rate limiter entirely, per SPEC_FULL.md §5.2 —
	// the only command permitted to do so.
	nctx, cancel := context.WithTimeout(ctx, s.opts.NotifierTimeout)
	err := s.notifier.SendText(nctx, "Test notification from the sauna supervisor.")
	cancel()

	if err != nil {
		result <- bus.CommandResult{Ok: false, Kind: adapters.CmdTestNotify.String(), Message: err.Error()}
		return
	}
	result <- bus.CommandResult{Ok: true, Kind: adapters.CmdTestNotify.String()}
}

// handleTimerFired routes a fired timer to its owning component, dropping
// stale generations per spec.md §5's cancellation rule.
func (s *Supervisor) handleTimerFired(ctx context.Context, e bus.TimerFiredEvent) {
	if !s.clk.Dispatch(e.Event) {
		return
	}

	switch e.Owner {
	case "ventilator":
		s.ventilator.OnTimerFired(ctx, e.Handle)
		s.publishSnapshot()
	case "floorheating":
		if s.floorHeating.OnTimerFired(ctx, e.Handle) {
			s.publishSnapshot()
		}
	default:
		log.Printf("supervisor: timer fired for unrecognised owner %q", e.Owner)
	}
}

// handleShutdown drains any already-queued events up to a 2s deadline
// (without acting on them — the process is stopping), then stops every
// timer and lets main close the adapters, per spec.md §5.
func (s *Supervisor) handleShutdown(ctx context.Context, e bus.ShutdownEvent) {
	deadline := time.Now().Add(2 * time.Second)
	drained := make(chan struct{})
	close(drained) // never block: Pop below just needs a pre-closed "done" to make draining non-blocking once empty

	for time.Now().Before(deadline) {
		if s.bus.Len() == 0 {
			break
		}
		s.bus.Pop(drained)
	}

	s.ventilator.StopAll()
	s.floorHeating.StopPolling()
	log.Printf("supervisor: shutdown complete")
}

// publishSnapshot assembles the current authoritative state plus the
// peripheral controllers' summaries and publishes it, per invariant 7 of
// spec.md §3.
func (s *Supervisor) publishSnapshot() {
	vs := s.ventilator.Summary()
	var floorHeating *adapters.FloorHeatingState
	if fh := s.floorHeating.Last(); !fh.At.IsZero() {
		floorHeating = &fh
	}

	snap := snapshot.Snapshot{
		Mcb:                             s.mcb,
		Phases:                          s.lastPhases,
		Temperature:                     s.lastTemp,
		Door:                            s.lastDoor,
		VentilatorIsOn:                  vs.RelayIsOn,
		VentilatorDelayedOffRemainingMs: vs.DelayedOffRemainingMs,
		FloorHeating:                    floorHeating,
		LastSafetyError:                s.lastSafetyError,
		FallbackMcb:                    s.fallbackMcb,
		FallbackMcbAt:                   s.fallbackMcbAt,
		At:                              s.clk.Now(),
	}
	s.broadcaster.Publish(snap)
}

// Mcb reports the current authoritative MCB state, for tests and health
// reporting.
func (s *Supervisor) Mcb() adapters.McbState {
	return s.mcb
}
