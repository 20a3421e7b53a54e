package mqtt

import (
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
)

// PhaseMeter assembles per-field l1/l2/l3 current publications into
// complete adapters.PhaseReading values. The accumulator holding three
// nullable fields is the adapter-owned assembly logic named in spec.md §3;
// each emitted reading is stamped with the time its completing field arrived.
type PhaseMeter struct {
	sub     <-chan any
	unsub   func()
	out     chan adapters.PhaseReading
	done    chan struct{}
	metrics *metrics.Metrics

	l1, l2, l3 *float64
}

// NewPhaseMeter subscribes to client's phase fan-out and starts assembling
// readings in a background goroutine. m records malformed payloads dropped
// at the boundary; a nil m is valid.
func NewPhaseMeter(client *Client, m *metrics.Metrics) *PhaseMeter {
	sub, unsub := client.sub(topicPhase)
	pm := &PhaseMeter{
		sub:     sub,
		unsub:   unsub,
		out:     make(chan adapters.PhaseReading, 16),
		done:    make(chan struct{}),
		metrics: m,
	}
	go pm.run()
	return pm
}

// Readings delivers complete three-phase samples.
func (m *PhaseMeter) Readings() <-chan adapters.PhaseReading {
	return m.out
}

// Close stops the assembler and unsubscribes from the fan-out.
func (m *PhaseMeter) Close() error {
	close(m.done)
	m.unsub()
	return nil
}

func (m *PhaseMeter) run() {
	for {
		select {
		case <-m.done:
			return
		case raw, ok := <-m.sub:
			if !ok {
				return
			}
			msg, ok := raw.(paho.Message)
			if !ok {
				continue
			}
			m.observe(msg)
		}
	}
}

// observe extracts the phase identifier from the last topic segment
// (case-insensitive l1_a/l2_a/l3_a) and the amperage from the plain-text
// payload, per spec.md §6. Any other topic under the same prefix is
// ignored.
func (m *PhaseMeter) observe(msg paho.Message) {
	segments := strings.Split(msg.Topic(), "/")
	if len(segments) == 0 {
		return
	}
	last := strings.ToLower(segments[len(segments)-1])

	amps, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		m.metrics.MalformedInput("phase")
		return
	}

	now := time.Now()
	switch last {
	case "l1_a":
		m.l1 = &amps
	case "l2_a":
		m.l2 = &amps
	case "l3_a":
		m.l3 = &amps
	default:
		return
	}

	if m.l1 == nil || m.l2 == nil || m.l3 == nil {
		return
	}

	reading := adapters.PhaseReading{L1: *m.l1, L2: *m.l2, L3: *m.l3, At: now}
	select {
	case m.out <- reading:
	case <-m.done:
	}
}
