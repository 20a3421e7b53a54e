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

// mcbPayload is the MQTT-fallback status publication for the breaker,
// independent of the local device protocol's push frames.
type mcbPayload struct {
	State string `json:"state"`
}

// McbObserver is the MQTT-fallback channel for learning the breaker's
// state, named in SPEC_FULL.md §5.1. It only observes; it has no TurnOn or
// TurnOff of its own, since the fallback path is read-only by design —
// whichever source config.McbStatusSource names authoritative is the one
// the supervisor trusts to drive commands through.
type McbObserver struct {
	sub     <-chan any
	unsub   func()
	out     chan adapters.McbObserved
	done    chan struct{}
	metrics *metrics.Metrics
}

// NewMcbObserver subscribes to client's mcb fan-out. m records malformed
// payloads dropped at the boundary; a nil m is valid.
func NewMcbObserver(client *Client, m *metrics.Metrics) *McbObserver {
	sub, unsub := client.sub(topicMcb)
	o := &McbObserver{
		sub:     sub,
		unsub:   unsub,
		out:     make(chan adapters.McbObserved, 16),
		done:    make(chan struct{}),
		metrics: m,
	}
	go o.run()
	return o
}

// Events delivers observed states, always tagged adapters.SourceMQTT.
func (o *McbObserver) Events() <-chan adapters.McbObserved {
	return o.out
}

// Close unsubscribes from the fan-out.
func (o *McbObserver) Close() error {
	close(o.done)
	o.unsub()
	return nil
}

func (o *McbObserver) run() {
	for {
		select {
		case <-o.done:
			return
		case raw, ok := <-o.sub:
			if !ok {
				return
			}
			msg, ok := raw.(paho.Message)
			if !ok {
				continue
			}
			o.observe(msg)
		}
	}
}

func (o *McbObserver) observe(msg paho.Message) {
	var p mcbPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("mqtt: malformed mcb fallback payload on %s: %v", msg.Topic(), err)
		o.metrics.MalformedInput("mcb")
		return
	}

	var state adapters.McbState
	switch strings.ToLower(p.State) {
	case "on":
		state = adapters.McbOn
	case "off":
		state = adapters.McbOff
	default:
		state = adapters.McbUnknown
	}

	ev := adapters.McbObserved{State: state, Source: adapters.SourceMQTT, At: time.Now()}
	select {
	case o.out <- ev:
	case <-o.done:
	}
}
