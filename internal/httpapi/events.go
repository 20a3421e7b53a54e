package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/saunaworks/sauna-supervisor/internal/snapshot"
)

// handleEvents serves the live snapshot feed as Server-Sent Events, per
// spec.md §6: a synthetic connected{subscriberId} record first, then every
// named record a changed snapshot carries — mcb_status, sensor_data,
// temperature, door, ventilator, floor_heating. The wire framing lives
// here, not in internal/snapshot, per spec.md §1.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	done := r.Context().Done()

	writeEvent(w, "connected", map[string]string{"subscriberId": id})
	flusher.Flush()

	var prev snapshot.Snapshot
	first := true
	for {
		snap, ok := sub.Recv(done)
		if !ok {
			return
		}
		for _, rec := range buildRecords(snap, prev, first) {
			writeEvent(w, rec.name, rec.payload)
		}
		prev = snap
		first = false
		flusher.Flush()
	}
}

type namedRecord struct {
	name    string
	payload any
}

// buildRecords emits only the records whose underlying value changed since
// prev, per spec.md §6 ("zero or more of the following"), except on the
// very first snapshot after connect, where everything present is sent.
func buildRecords(snap, prev snapshot.Snapshot, first bool) []namedRecord {
	var records []namedRecord

	if first || snap.Mcb != prev.Mcb {
		records = append(records, namedRecord{"mcb_status", map[string]any{
			"status": snap.Mcb.String(),
		}})
	}

	if snap.Phases != nil && (first || prev.Phases == nil || *snap.Phases != *prev.Phases) {
		records = append(records, namedRecord{"sensor_data", map[string]any{
			"l1": snap.Phases.L1,
			"l2": snap.Phases.L2,
			"l3": snap.Phases.L3,
		}})
	}

	if snap.Temperature != nil && (first || prev.Temperature == nil || *snap.Temperature != *prev.Temperature) {
		records = append(records, namedRecord{"temperature", map[string]any{
			"temperature": snap.Temperature.Celsius,
			"humidity":    snap.Temperature.Humidity,
		}})
	}

	if snap.Door != nil && (first || prev.Door == nil || *snap.Door != *prev.Door) {
		records = append(records, namedRecord{"door", map[string]any{
			"isOpen": snap.Door.IsOpen,
		}})
	}

	ventilatorChanged := snap.VentilatorDelayedOffRemainingMs != prev.VentilatorDelayedOffRemainingMs ||
		(snap.VentilatorIsOn == nil) != (prev.VentilatorIsOn == nil) ||
		(snap.VentilatorIsOn != nil && prev.VentilatorIsOn != nil && *snap.VentilatorIsOn != *prev.VentilatorIsOn)
	if snap.VentilatorIsOn != nil && (first || ventilatorChanged) {
		records = append(records, namedRecord{"ventilator", map[string]any{
			"status":              *snap.VentilatorIsOn,
			"delayedOffRemaining": snap.VentilatorDelayedOffRemainingMs,
		}})
	}

	if snap.FloorHeating != nil && (first || prev.FloorHeating == nil || *snap.FloorHeating != *prev.FloorHeating) {
		records = append(records, namedRecord{"floor_heating", map[string]any{
			"currentTemp": snap.FloorHeating.CurrentC,
			"targetTemp":  snap.FloorHeating.TargetC,
			"mode":        snap.FloorHeating.Mode.String(),
			"action":      snap.FloorHeating.Action.String(),
		}})
	}

	return records
}

func writeEvent(w http.ResponseWriter, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("httpapi: marshal %s event: %v", name, err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
