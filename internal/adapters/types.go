// Package adapters defines the data model and the interfaces the sauna
// supervisor depends on to reach the outside world: the MCB, the phase
// meter, environment sensors, the button, the ventilator relay, the floor
// heating thermostat, and the notification gateway. Nothing in this package
// knows about MQTT, HTTP, or any particular wire format — those live under
// internal/transport and implement these contracts.
package adapters

import "time"

// McbState is the discriminated state of the circuit breaker switching the
// sauna heater. It is single-writer: only the supervisor mutates its own
// view of it, in response to McbObserved events or successful commands.
type McbState int

const (
	McbUnknown McbState = iota
	McbOn
	McbOff
)

func (s McbState) String() string {
	switch s {
	case McbOn:
		return "on"
	case McbOff:
		return "off"
	default:
		return "unknown"
	}
}

// McbSource distinguishes the authoritative device channel from the
// fallback MQTT observer (see SPEC_FULL.md §5.1).
type McbSource int

const (
	SourceDevice McbSource = iota
	SourceMQTT
)

func (s McbSource) String() string {
	if s == SourceMQTT {
		return "mqtt"
	}
	return "device"
}

// McbObserved is emitted whenever an adapter learns the breaker's state,
// tagged with which channel it came from.
type McbObserved struct {
	State  McbState
	Source McbSource
	At     time.Time
}

// PhaseReading is an immutable, fully-assembled three-phase current sample.
// It is never constructed with fewer than three components (invariant 2 in
// spec.md §3) — the accumulator that assembles it from per-field updates
// lives in the meter adapter, not here.
type PhaseReading struct {
	L1, L2, L3 float64
	At         time.Time
}

// TemperatureReading is a Ruuvi-style environment sample.
type TemperatureReading struct {
	Celsius     float64
	Humidity    *float64
	BatteryVolt *float64
	RSSI        *int
	At          time.Time
}

// DoorReading reports the sauna door's open/closed state.
type DoorReading struct {
	IsOpen     bool
	BatteryPct *float64
	At         time.Time
}

// ButtonAction is the normalised action a button adapter reports, already
// mapped from whatever vocabulary the underlying device uses
// (single_click, long_press, ...).
type ButtonAction int

const (
	ButtonUnknown ButtonAction = iota
	ButtonClick
	ButtonDoubleClick
	ButtonHold
)

func (a ButtonAction) String() string {
	switch a {
	case ButtonClick:
		return "click"
	case ButtonDoubleClick:
		return "double_click"
	case ButtonHold:
		return "hold"
	default:
		return "unknown"
	}
}

// ButtonEvent is a single normalised button action.
type ButtonEvent struct {
	Action ButtonAction
	ID     string // optional device identifier, empty if not reported
	At     time.Time
}

// FlicAction is what a button action resolves to via the operator's
// configured mapping.
type FlicAction int

const (
	FlicNone FlicAction = iota
	FlicToggle
	FlicForceOn
	FlicForceOff
)

// FloorHeatingMode is the thermostat's operating mode.
type FloorHeatingMode int

const (
	FloorHeatingModeUnknown FloorHeatingMode = iota
	FloorHeatingModeAuto
	FloorHeatingModeManual
)

func (m FloorHeatingMode) String() string {
	switch m {
	case FloorHeatingModeAuto:
		return "auto"
	case FloorHeatingModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// FloorHeatingAction is what the thermostat reports doing right now.
type FloorHeatingAction int

const (
	FloorHeatingActionUnknown FloorHeatingAction = iota
	FloorHeatingActionHeating
	FloorHeatingActionWarming
	FloorHeatingActionIdle
)

func (a FloorHeatingAction) String() string {
	switch a {
	case FloorHeatingActionHeating:
		return "heating"
	case FloorHeatingActionWarming:
		return "warming"
	case FloorHeatingActionIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// FloorHeatingState is the thermostat's reported status, owned exclusively
// by internal/floorheating.
type FloorHeatingState struct {
	Mode     FloorHeatingMode
	Action   FloorHeatingAction
	TargetC  float64
	CurrentC float64
	At       time.Time
}

// NotificationKind identifies which cooldown bucket an outbound
// notification belongs to.
type NotificationKind int

const (
	SafetyShutdown NotificationKind = iota
	TemperatureAlert
)

func (k NotificationKind) String() string {
	if k == TemperatureAlert {
		return "temperature_alert"
	}
	return "safety_shutdown"
}

// OperatorCommand is the logical command surface exposed to the HTTP layer.
type OperatorCommand int

const (
	CmdGetMcb OperatorCommand = iota
	CmdTurnOn
	CmdTurnOff
	CmdToggle
	CmdForceOn
	CmdForceOff
	CmdTestNotify
	CmdHealth
)

func (c OperatorCommand) String() string {
	switch c {
	case CmdGetMcb:
		return "get_mcb"
	case CmdTurnOn:
		return "turn_on"
	case CmdTurnOff:
		return "turn_off"
	case CmdToggle:
		return "toggle"
	case CmdForceOn:
		return "force_on"
	case CmdForceOff:
		return "force_off"
	case CmdTestNotify:
		return "test_notify"
	case CmdHealth:
		return "health"
	default:
		return "unknown"
	}
}
