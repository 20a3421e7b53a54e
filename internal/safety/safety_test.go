package safety

import (
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

func reading(l1, l2, l3 float64) adapters.PhaseReading {
	return adapters.PhaseReading{L1: l1, L2: l2, L3: l3, At: time.Unix(0, 0)}
}

func TestCheckThresholdsNoOffenders(t *testing.T) {
	res := CheckThresholds(reading(12, 7, 3), 25)
	if res.Exceeds {
		t.Fatalf("expected no offenders, got %+v", res.Offenders)
	}
}

func TestCheckThresholdsStrictGreaterThan(t *testing.T) {
	res := CheckThresholds(reading(25, 0, 0), 25)
	if res.Exceeds {
		t.Fatalf("equality must not trip the check, got %+v", res.Offenders)
	}
}

func TestCheckThresholdsFixedOrder(t *testing.T) {
	res := CheckThresholds(reading(5, 28, 30), 25)
	if !res.Exceeds {
		t.Fatal("expected offenders")
	}
	if len(res.Offenders) != 2 || res.Offenders[0].Phase != L2 || res.Offenders[1].Phase != L3 {
		t.Fatalf("expected L2 then L3 in order, got %+v", res.Offenders)
	}
}

func TestFormatOffenders(t *testing.T) {
	got := FormatOffenders([]Offender{{Phase: L1, Amps: 28}, {Phase: L3, Amps: 28.9}})
	want := "L1 (28A), L3 (28A)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatOffendersEmpty(t *testing.T) {
	if got := FormatOffenders(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
