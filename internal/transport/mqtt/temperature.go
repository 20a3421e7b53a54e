package mqtt

import (
	"encoding/json"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
)

// ruuviPayload matches spec.md §6's ruuvi JSON shape:
// { temp: number (required), humidity?, pressure?, batt?, rssi? }.
type ruuviPayload struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Batt     *float64 `json:"batt"`
	RSSI     *int     `json:"rssi"`
}

// TemperatureSource parses ruuvi JSON into adapters.TemperatureReading.
type TemperatureSource struct {
	sub     <-chan any
	unsub   func()
	out     chan adapters.TemperatureReading
	done    chan struct{}
	metrics *metrics.Metrics
}

// NewTemperatureSource subscribes to client's ruuvi fan-out. m records
// malformed payloads dropped at the boundary; a nil m is valid.
func NewTemperatureSource(client *Client, m *metrics.Metrics) *TemperatureSource {
	sub, unsub := client.sub(topicRuuvi)
	s := &TemperatureSource{
		sub:     sub,
		unsub:   unsub,
		out:     make(chan adapters.TemperatureReading, 16),
		done:    make(chan struct{}),
		metrics: m,
	}
	go s.run()
	return s
}

// Readings delivers parsed environment samples.
func (s *TemperatureSource) Readings() <-chan adapters.TemperatureReading {
	return s.out
}

// Close unsubscribes from the fan-out.
func (s *TemperatureSource) Close() error {
	close(s.done)
	s.unsub()
	return nil
}

func (s *TemperatureSource) run() {
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

func (s *TemperatureSource) observe(msg paho.Message) {
	var p ruuviPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("mqtt: malformed ruuvi payload on %s: %v", msg.Topic(), err)
		s.metrics.MalformedInput("temperature")
		return
	}
	if p.Temp == nil {
		log.Printf("mqtt: ruuvi payload on %s missing required temp field", msg.Topic())
		s.metrics.MalformedInput("temperature")
		return
	}

	reading := adapters.TemperatureReading{
		Celsius:     *p.Temp,
		Humidity:    p.Humidity,
		BatteryVolt: p.Batt,
		RSSI:        p.RSSI,
		At:          time.Now(),
	}
	select {
	case s.out <- reading:
	case <-s.done:
	}
}
