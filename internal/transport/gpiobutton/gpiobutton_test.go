package gpiobutton

import (
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/gpio"
)

func testOptions() Options {
	return Options{
		PollInterval:      time.Millisecond,
		Debounce:          3 * time.Millisecond,
		HoldThreshold:     30 * time.Millisecond,
		DoubleClickWindow: 20 * time.Millisecond,
	}
}

// press builds a sample sequence for a single press held for n debounce
// ticks, then released and held released for n more.
func press(n int) []bool {
	samples := make([]bool, 0, 2*n)
	for i := 0; i < n; i++ {
		samples = append(samples, true)
	}
	for i := 0; i < n; i++ {
		samples = append(samples, false)
	}
	return samples
}

func recvEvent(t *testing.T, src *Source, timeout time.Duration) adapters.ButtonEvent {
	t.Helper()
	select {
	case ev := <-src.Events():
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for button event")
		return adapters.ButtonEvent{}
	}
}

func TestSource_ShortPressEmitsClick(t *testing.T) {
	fake := gpio.NewFakeReader(press(8))
	src := New(fake, testOptions())
	defer src.Close()

	ev := recvEvent(t, src, time.Second)
	if ev.Action != adapters.ButtonClick {
		t.Fatalf("expected click, got %v", ev.Action)
	}
}

func TestSource_LongPressEmitsHold(t *testing.T) {
	samples := make([]bool, 0, 80)
	for i := 0; i < 40; i++ {
		samples = append(samples, true)
	}
	samples = append(samples, false)
	fake := gpio.NewFakeReader(samples)
	src := New(fake, testOptions())
	defer src.Close()

	ev := recvEvent(t, src, time.Second)
	if ev.Action != adapters.ButtonHold {
		t.Fatalf("expected hold, got %v", ev.Action)
	}
}

func TestSource_TwoQuickPressesEmitDoubleClick(t *testing.T) {
	var samples []bool
	samples = append(samples, press(6)...)
	samples = append(samples, press(6)...)
	fake := gpio.NewFakeReader(samples)
	src := New(fake, testOptions())
	defer src.Close()

	ev := recvEvent(t, src, time.Second)
	if ev.Action != adapters.ButtonDoubleClick {
		t.Fatalf("expected double_click, got %v", ev.Action)
	}
}

func TestSource_CloseStopsPolling(t *testing.T) {
	fake := gpio.NewFakeReader([]bool{false})
	src := New(fake, testOptions())

	if err := src.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.Closed {
		t.Error("expected underlying reader to be closed")
	}
}
