package localkv

import (
	"context"
	"fmt"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// ThermostatClient reaches the floor-heating thermostat over the local
// device protocol. It implements adapters.Thermostat. Unlike the MCB, the
// thermostat has no push-on-connect requirement — its state is only ever
// learned via an explicit Status call, driven by internal/floorheating's
// periodic poll.
type ThermostatClient struct {
	conn            *Conn
	protocolVersion string
}

// DialThermostat connects to the thermostat at addr.
func DialThermostat(ctx context.Context, addr, deviceID, localKey, protocolVersion string) (*ThermostatClient, error) {
	conn, err := Dial(ctx, addr, deviceID, localKey, nil)
	if err != nil {
		return nil, err
	}
	return &ThermostatClient{conn: conn, protocolVersion: protocolVersion}, nil
}

// SetMode sets the thermostat's operating mode.
func (t *ThermostatClient) SetMode(ctx context.Context, mode adapters.FloorHeatingMode) error {
	_, err := t.conn.RoundTrip(ctx, "set_mode", map[string]interface{}{
		"mode":            mode.String(),
		"protocolVersion": t.protocolVersion,
	})
	if err != nil {
		return fmt.Errorf("thermostat: set mode: %w", translateErr(err))
	}
	return nil
}

// SetTargetC sets the target temperature in Celsius.
func (t *ThermostatClient) SetTargetC(ctx context.Context, celsius float64) error {
	_, err := t.conn.RoundTrip(ctx, "set_target", map[string]interface{}{
		"targetC":         celsius,
		"protocolVersion": t.protocolVersion,
	})
	if err != nil {
		return fmt.Errorf("thermostat: set target: %w", translateErr(err))
	}
	return nil
}

// Status polls the thermostat's current state.
func (t *ThermostatClient) Status(ctx context.Context) (adapters.FloorHeatingState, error) {
	resp, err := t.conn.RoundTrip(ctx, "status", map[string]interface{}{"protocolVersion": t.protocolVersion})
	if err != nil {
		return adapters.FloorHeatingState{}, fmt.Errorf("thermostat: status: %w", translateErr(err))
	}
	return decodeFloorHeatingState(resp), nil
}

// Close closes the underlying connection.
func (t *ThermostatClient) Close() error {
	return t.conn.Close()
}

func decodeFloorHeatingState(f Frame) adapters.FloorHeatingState {
	data := f.Data
	state := adapters.FloorHeatingState{At: time.Now()}
	if data == nil {
		return state
	}

	switch v, _ := data["mode"].(string); v {
	case "auto":
		state.Mode = adapters.FloorHeatingModeAuto
	case "manual":
		state.Mode = adapters.FloorHeatingModeManual
	default:
		state.Mode = adapters.FloorHeatingModeUnknown
	}

	switch v, _ := data["action"].(string); v {
	case "heating":
		state.Action = adapters.FloorHeatingActionHeating
	case "warming":
		state.Action = adapters.FloorHeatingActionWarming
	case "idle":
		state.Action = adapters.FloorHeatingActionIdle
	default:
		state.Action = adapters.FloorHeatingActionUnknown
	}

	if v, ok := data["targetC"].(float64); ok {
		state.TargetC = v
	}
	if v, ok := data["currentC"].(float64); ok {
		state.CurrentC = v
	}
	return state
}
