// Package httpclient reaches the ventilator relay and the notification
// gateway over plain HTTP (spec.md §1, §6). Every outbound call is wrapped
// in a sony/gobreaker.CircuitBreaker, the same mkCB/Execute shape
// LeonardoBeccarini-SDCC_Project's gateway uses in front of its own
// upstream REST calls, so a wedged relay or notifier degrades to fast
// failures instead of piling up blocked supervisor goroutines.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// breakerSettings is shared by every circuit this package opens: trip after
// 3 consecutive failures, stay open 30s, matching the fail/open tuning
// LeonardoBeccarini-SDCC_Project's mkCB applies to its own REST upstreams.
func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	}
}

// VentilatorRelay reaches a Shelly-style HTTP relay (the JSON status shapes
// spec.md §6 enumerates — {output}, {"switch:0":{output}}, {status},
// {state} — are exactly what Shelly Gen1/Gen2 relays report). It implements
// adapters.VentilatorRelay.
type VentilatorRelay struct {
	ip      string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewVentilatorRelay creates a relay client addressing ip, with every call
// bounded by timeout.
func NewVentilatorRelay(ip string, timeout time.Duration) *VentilatorRelay {
	return &VentilatorRelay{
		ip:      ip,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(breakerSettings("ventilator-relay")),
	}
}

// Set commands the relay on or off.
func (r *VentilatorRelay) Set(ctx context.Context, on bool) error {
	turn := "off"
	if on {
		turn = "on"
	}
	url := fmt.Sprintf("http://%s/relay/0?turn=%s", r.ip, turn)

	_, err := r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("relay set: %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("ventilator relay: set %s: %w", turn, classifyErr(err))
	}
	return nil
}

// Status reports the relay's observed on/off state, decoding whichever of
// the four JSON shapes spec.md §6 names the device returns.
func (r *VentilatorRelay) Status(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("http://%s/relay/0", r.ip)

	res, err := r.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("relay status: %s", resp.Status)
		}
		on, ok := DecodeRelayStatus(body)
		if !ok {
			return nil, fmt.Errorf("relay status: unrecognised payload")
		}
		return on, nil
	})
	if err != nil {
		return false, fmt.Errorf("ventilator relay: status: %w", classifyErr(err))
	}
	return res.(bool), nil
}

// Close is a no-op: the shared http.Client owns no per-call resources that
// outlive a request.
func (r *VentilatorRelay) Close() error { return nil }

// DecodeRelayStatus parses any of the four JSON shapes spec.md §6
// enumerates for ventilator status payloads, matching case-insensitively
// on the state string form.
func DecodeRelayStatus(body []byte) (on bool, ok bool) {
	var flat struct {
		Output *bool   `json:"output"`
		Status *bool   `json:"status"`
		State  *string `json:"state"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.Output != nil {
			return *flat.Output, true
		}
		if flat.Status != nil {
			return *flat.Status, true
		}
		if flat.State != nil {
			return strings.EqualFold(*flat.State, "on"), true
		}
	}

	var nested struct {
		Switch0 struct {
			Output *bool `json:"output"`
		} `json:"switch:0"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Switch0.Output != nil {
		return *nested.Switch0.Output, true
	}

	return false, false
}

// Notifier sends free-text operator notifications over HTTP to whatever
// gateway url points at (spec.md §4.I: "Whether WhatsApp or other is opaque
// to the core"). It implements adapters.Notifier.
type Notifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewNotifier creates a Notifier posting to url, bounded by timeout.
func NewNotifier(url string, timeout time.Duration) *Notifier {
	return &Notifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(breakerSettings("notifier")),
	}
}

// SendText posts body as a free-text notification.
func (n *Notifier) SendText(ctx context.Context, body string) error {
	payload, err := json.Marshal(map[string]string{"text": body})
	if err != nil {
		return fmt.Errorf("notifier: encode: %w", err)
	}

	_, err = n.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("notifier send: %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("notifier: send: %w", classifyErr(err))
	}
	return nil
}

// classifyErr maps an HTTP/breaker failure onto the adapter error
// sentinels the supervisor branches on (spec.md §7). A tripped breaker is
// reported as a timeout: from the caller's perspective the effect is
// identical — the call did not get a chance to reach the device.
func classifyErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: circuit open: %v", adapters.ErrTimeout, err)
	}
	if err == context.DeadlineExceeded {
		return fmt.Errorf("%w: %v", adapters.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", adapters.ErrProtocol, err)
}
