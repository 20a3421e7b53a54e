package localkv

import (
	"context"
	"fmt"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// initialStateTimeout is the "must emit the current state within 10s"
// deadline from spec.md §4.I.
const initialStateTimeout = 10 * time.Second

// McbClient reaches the sauna circuit breaker over the local device
// protocol. It implements adapters.McbDevice.
type McbClient struct {
	conn   *Conn
	events chan adapters.McbObserved
}

// DialMcb connects to the breaker at addr and blocks until its current
// state has been observed (or initialStateTimeout elapses), per the
// McbDevice contract.
func DialMcb(ctx context.Context, addr, deviceID, localKey string) (*McbClient, error) {
	firstPush := make(chan Frame, 1)
	events := make(chan adapters.McbObserved, 32)

	m := &McbClient{conn: nil, events: events}

	onPush := func(f Frame) {
		obs, ok := decodeMcbPush(f)
		if !ok {
			return
		}
		select {
		case firstPush <- f:
		default:
		}
		select {
		case events <- obs:
		default:
			// Slow consumer: McbObserved is critical to the bus, not to this
			// adapter's own small buffer — internal/bus applies the real
			// never-drop policy once the event reaches it. Here we only
			// protect against an unbounded goroutine leak.
		}
	}

	conn, err := Dial(ctx, addr, deviceID, localKey, onPush)
	if err != nil {
		return nil, err
	}
	m.conn = conn

	if _, err := waitForFirstPush(firstPush, initialStateTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcb: %w", err)
	}

	return m, nil
}

func decodeMcbPush(f Frame) (adapters.McbObserved, bool) {
	if f.Data == nil {
		return adapters.McbObserved{}, false
	}
	raw, ok := f.Data["state"].(string)
	if !ok {
		return adapters.McbObserved{}, false
	}

	var state adapters.McbState
	switch raw {
	case "on":
		state = adapters.McbOn
	case "off":
		state = adapters.McbOff
	default:
		state = adapters.McbUnknown
	}

	return adapters.McbObserved{
		State:  state,
		Source: adapters.SourceDevice,
		At:     time.Now(),
	}, true
}

// TurnOn commands the breaker on.
func (m *McbClient) TurnOn(ctx context.Context) error {
	_, err := m.conn.RoundTrip(ctx, "set_state", map[string]interface{}{"state": "on"})
	if err != nil {
		return fmt.Errorf("mcb: turn on: %w", translateErr(err))
	}
	return nil
}

// TurnOff commands the breaker off.
func (m *McbClient) TurnOff(ctx context.Context) error {
	_, err := m.conn.RoundTrip(ctx, "set_state", map[string]interface{}{"state": "off"})
	if err != nil {
		return fmt.Errorf("mcb: turn off: %w", translateErr(err))
	}
	return nil
}

// Events delivers every state observed on this connection, tagged
// SourceDevice.
func (m *McbClient) Events() <-chan adapters.McbObserved {
	return m.events
}

// Close closes the underlying connection and, once its read loop has
// confirmed it will call onPush no more, closes the events channel so
// Events' range-based forwarders terminate instead of leaking.
func (m *McbClient) Close() error {
	err := m.conn.Close()
	go func() {
		<-m.conn.Stopped()
		close(m.events)
	}()
	return err
}

// translateErr maps low-level localkv errors onto the adapter error
// sentinels the supervisor branches on (spec.md §7).
func translateErr(err error) error {
	switch err {
	case context.DeadlineExceeded:
		return fmt.Errorf("%w: %v", adapters.ErrTimeout, err)
	case ErrClosed:
		return fmt.Errorf("%w: %v", adapters.ErrNotConnected, err)
	default:
		if err == context.Canceled {
			return fmt.Errorf("%w: %v", adapters.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", adapters.ErrProtocol, err)
	}
}
