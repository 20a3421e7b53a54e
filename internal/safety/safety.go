// Package safety contains the pure phase-threshold check the supervisor
// consults before tripping the breaker. It has NO external dependencies (no
// bus, no clock, no adapters) and is fully deterministic — every input it
// needs is a parameter.
package safety

import (
	"fmt"
	"strings"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

// Phase identifies one of the three live conductors.
type Phase int

const (
	L1 Phase = iota
	L2
	L3
)

func (p Phase) String() string {
	switch p {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return "?"
	}
}

// Offender is a phase whose current exceeded the configured threshold.
type Offender struct {
	Phase Phase
	Amps  float64
}

// Result is the outcome of a threshold check.
type Result struct {
	Exceeds   bool
	Offenders []Offender
}

// CheckThresholds compares a phase reading against threshold using a strict
// "greater than" test — equality never trips. Offenders are always reported
// in L1, L2, L3 order regardless of which phases exceeded the threshold.
func CheckThresholds(reading adapters.PhaseReading, threshold float64) Result {
	var offenders []Offender
	if reading.L1 > threshold {
		offenders = append(offenders, Offender{Phase: L1, Amps: reading.L1})
	}
	if reading.L2 > threshold {
		offenders = append(offenders, Offender{Phase: L2, Amps: reading.L2})
	}
	if reading.L3 > threshold {
		offenders = append(offenders, Offender{Phase: L3, Amps: reading.L3})
	}
	return Result{Exceeds: len(offenders) > 0, Offenders: offenders}
}

// FormatOffenders renders a list of offenders for a notification body, e.g.
// "L1 (26A), L3 (28A)". Amperage is printed as an integer truncation of the
// value received — no additional rounding is applied beyond what the
// adapter already did.
func FormatOffenders(offenders []Offender) string {
	parts := make([]string, 0, len(offenders))
	for _, o := range offenders {
		parts = append(parts, fmt.Sprintf("%s (%dA)", o.Phase, int(o.Amps)))
	}
	return strings.Join(parts, ", ")
}
