package mqtt

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
)

// buttonPayload matches spec.md §6's button JSON shape:
// { action: "click"|"double_click"|"hold"|"single_click"|"long_press"|
// "doubleclick"|..., button_id?: string }.
type buttonPayload struct {
	Action   string `json:"action"`
	ButtonID string `json:"button_id"`
}

// ButtonSource normalises MQTT button JSON into adapters.ButtonEvent,
// mapping the device's vocabulary to Click/DoubleClick/Hold per spec.md §6.
// It is a second, independent implementation of adapters.ButtonSource
// alongside the local GPIO one — both may be composed onto the same bus.
type ButtonSource struct {
	sub     <-chan any
	unsub   func()
	out     chan adapters.ButtonEvent
	done    chan struct{}
	metrics *metrics.Metrics
}

// NewButtonSource subscribes to client's button fan-out. m records
// malformed payloads dropped at the boundary; a nil m is valid.
func NewButtonSource(client *Client, m *metrics.Metrics) *ButtonSource {
	sub, unsub := client.sub(topicButton)
	s := &ButtonSource{
		sub:     sub,
		unsub:   unsub,
		out:     make(chan adapters.ButtonEvent, 16),
		done:    make(chan struct{}),
		metrics: m,
	}
	go s.run()
	return s
}

// Events delivers normalised button actions.
func (s *ButtonSource) Events() <-chan adapters.ButtonEvent {
	return s.out
}

// Close unsubscribes from the fan-out.
func (s *ButtonSource) Close() error {
	close(s.done)
	s.unsub()
	return nil
}

func (s *ButtonSource) run() {
	for {
		select {
		case <-s.done:
			return
		case raw, ok := <-s.sub:
			if !ok {
				return
			}
			msg, ok := raw.(paho.Message)
			if !ok {
				continue
			}
			s.observe(msg)
		}
	}
}

func (s *ButtonSource) observe(msg paho.Message) {
	var p buttonPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("mqtt: malformed button payload on %s: %v", msg.Topic(), err)
		s.metrics.MalformedInput("button")
		return
	}

	action := normaliseButtonAction(p.Action)
	if action == adapters.ButtonUnknown {
		log.Printf("mqtt: unrecognised button action %q on %s", p.Action, msg.Topic())
	}

	ev := adapters.ButtonEvent{Action: action, ID: p.ButtonID, At: time.Now()}
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

func normaliseButtonAction(raw string) adapters.ButtonAction {
	switch strings.ToLower(raw) {
	case "click", "single_click":
		return adapters.ButtonClick
	case "double_click", "doubleclick":
		return adapters.ButtonDoubleClick
	case "hold", "long_press":
		return adapters.ButtonHold
	default:
		return adapters.ButtonUnknown
	}
}
