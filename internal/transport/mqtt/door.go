package mqtt

import (
	"encoding/json"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
)

// doorPayload matches spec.md §6's door JSON shape:
// { Window: 0|1, Battery?: number }.
type doorPayload struct {
	Window  int      `json:"Window"`
	Battery *float64 `json:"Battery"`
}

// DoorSource parses door-sensor JSON into adapters.DoorReading.
type DoorSource struct {
	sub     <-chan any
	unsub   func()
	out     chan adapters.DoorReading
	done    chan struct{}
	metrics *metrics.Metrics
}

// NewDoorSource subscribes to client's door fan-out. m records malformed
// payloads dropped at the boundary; a nil m is valid.
func NewDoorSource(client *Client, m *metrics.Metrics) *DoorSource {
	sub, unsub := client.sub(topicDoor)
	s := &DoorSource{
		sub:     sub,
		unsub:   unsub,
		out:     make(chan adapters.DoorReading, 16),
		done:    make(chan struct{}),
		metrics: m,
	}
	go s.run()
	return s
}

// Readings delivers parsed door samples.
func (s *DoorSource) Readings() <-chan adapters.DoorReading {
	return s.out
}

// Close unsubscribes from the fan-out.
func (s *DoorSource) Close() error {
	close(s.done)
	s.unsub()
	return nil
}

func (s *DoorSource) run() {
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

func (s *DoorSource) observe(msg paho.Message) {
	var p doorPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("mqtt: malformed door payload on %s: %v", msg.Topic(), err)
		s.metrics.MalformedInput("door")
		return
	}

	reading := adapters.DoorReading{
		IsOpen:     p.Window != 0,
		BatteryPct: p.Battery,
		At:         time.Now(),
	}
	select {
	case s.out <- reading:
	case <-s.done:
	}
}
