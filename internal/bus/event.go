// Package bus implements the sauna supervisor's single-consumer mailbox.
// Producers — adapters, the HTTP layer, the clock — enqueue typed events;
// exactly one consumer (the supervisor loop) dequeues them, one at a time,
// in the order each producer enqueued them. Events are a discriminated
// union dispatched by type switch, the same shape
// realraum-door_and_sensors' r3events package uses for its EventToWeb
// handler.
package bus

import (
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/clock"
)

// Event is the marker interface implemented by every event kind the bus
// carries. Dispatch is always a type switch with an explicit, logged
// default case — never a silent fallthrough.
type Event interface {
	eventMarker()
}

// McbObservedEvent reports a device or MQTT-fallback observation of the
// breaker's state. Critical: never dropped by the bus.
type McbObservedEvent struct {
	adapters.McbObserved
}

// PhaseReadingEvent reports a fully-assembled three-phase current sample.
// Critical: never dropped by the bus.
type PhaseReadingEvent struct {
	adapters.PhaseReading
}

// TemperatureReadingEvent reports an environment sample.
type TemperatureReadingEvent struct {
	adapters.TemperatureReading
}

// DoorReadingEvent reports a door sample.
type DoorReadingEvent struct {
	adapters.DoorReading
}

// ButtonOccurredEvent reports a normalised button action.
type ButtonOccurredEvent struct {
	adapters.ButtonEvent
}

// CommandResult is handed back to whoever issued an OperatorCommandEvent.
type CommandResult struct {
	Ok      bool
	Kind    string
	Message string
	Mcb     adapters.McbState
}

// OperatorCommandEvent carries an operator command in from the HTTP layer.
// Result is buffered (capacity 1) and written to exactly once by the
// supervisor before the event handler returns.
type OperatorCommandEvent struct {
	Command adapters.OperatorCommand
	Result  chan<- CommandResult
}

// TimerFiredEvent reports that a clock.Service timer fired. Owner
// identifies which component armed it ("ventilator" or "floorheating") so
// dispatch can route it without a global timer registry.
type TimerFiredEvent struct {
	clock.Event
	Owner string
}

// ShutdownEvent requests an orderly supervisor shutdown.
type ShutdownEvent struct {
	At time.Time
}

func (McbObservedEvent) eventMarker()        {}
func (PhaseReadingEvent) eventMarker()       {}
func (TemperatureReadingEvent) eventMarker() {}
func (DoorReadingEvent) eventMarker()        {}
func (ButtonOccurredEvent) eventMarker()     {}
func (OperatorCommandEvent) eventMarker()    {}
func (TimerFiredEvent) eventMarker()         {}
func (ShutdownEvent) eventMarker()           {}

// isCritical reports whether an event kind must never be dropped by the
// bus, per spec.md §4.B: "PhaseReading and McbObserved are marked critical
// and are never dropped".
func isCritical(e Event) bool {
	switch e.(type) {
	case McbObservedEvent, PhaseReadingEvent:
		return true
	default:
		return false
	}
}

// kindLabel names an event's kind for metrics, without reflection.
func kindLabel(e Event) string {
	switch e.(type) {
	case McbObservedEvent:
		return "mcb_observed"
	case PhaseReadingEvent:
		return "phase_reading"
	case TemperatureReadingEvent:
		return "temperature_reading"
	case DoorReadingEvent:
		return "door_reading"
	case ButtonOccurredEvent:
		return "button_occurred"
	case OperatorCommandEvent:
		return "operator_command"
	case TimerFiredEvent:
		return "timer_fired"
	case ShutdownEvent:
		return "shutdown"
	default:
		return "unknown"
	}
}
