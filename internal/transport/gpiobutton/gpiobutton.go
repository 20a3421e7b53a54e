// Package gpiobutton implements the optional local wired button named in
// SPEC_FULL.md §5.4: an adapters.ButtonSource read directly off a Linux GPIO
// line instead of over MQTT. The debounce shape — track a pending state and
// its since-timestamp, confirm only once it has held for a full debounce
// window — is adapted from internal/logic's old Detector, which debounced
// two GPIO-derived channels the same way; here it debounces one line and
// additionally classifies the debounced press/release pairs into click,
// double-click, and hold actions.
package gpiobutton

import (
	"sync"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/gpio"
)

// Options tunes the debounce and classification windows. Defaults match
// typical momentary-button feel.
type Options struct {
	PollInterval      time.Duration
	Debounce          time.Duration
	HoldThreshold     time.Duration
	DoubleClickWindow time.Duration
}

// DefaultOptions returns sensible defaults for a wired panic/test button.
func DefaultOptions() Options {
	return Options{
		PollInterval:      20 * time.Millisecond,
		Debounce:          30 * time.Millisecond,
		HoldThreshold:     600 * time.Millisecond,
		DoubleClickWindow: 400 * time.Millisecond,
	}
}

// Source polls a gpio.Reader and emits normalised adapters.ButtonEvent
// values. It implements adapters.ButtonSource.
type Source struct {
	reader gpio.Reader
	opts   Options
	events chan adapters.ButtonEvent
	done   chan struct{}
	wg     sync.WaitGroup

	// Debounce state for the raw line, mirroring
	// internal/logic.Detector.processChannel's single-channel shape.
	stable       bool
	pending      bool
	pendingKnown bool
	pendingSince time.Time

	pressedAt time.Time

	mu             sync.Mutex
	pendingClick   bool
	clickTimer     *time.Timer
	clickReleaseAt time.Time
}

// New starts polling reader in a background goroutine and returns a Source
// ready to deliver events. Call Close to stop.
func New(reader gpio.Reader, opts Options) *Source {
	s := &Source{
		reader: reader,
		opts:   opts,
		events: make(chan adapters.ButtonEvent, 16),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pollLoop()
	return s
}

// Events delivers normalised button actions.
func (s *Source) Events() <-chan adapters.ButtonEvent {
	return s.events
}

// Close stops polling and releases the underlying GPIO line.
func (s *Source) Close() error {
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	if s.clickTimer != nil {
		s.clickTimer.Stop()
	}
	s.mu.Unlock()

	return s.reader.Close()
}

func (s *Source) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			pressed, err := s.reader.Read()
			if err != nil {
				continue
			}
			s.processSample(pressed, time.Now())
		}
	}
}

// processSample debounces one raw sample and, on a confirmed release,
// classifies the completed press. Adapted from
// internal/logic.Detector.processChannel.
func (s *Source) processSample(pressed bool, now time.Time) {
	if !s.pendingKnown {
		s.pending = pressed
		s.pendingKnown = true
		s.pendingSince = now
		return
	}

	if pressed == s.stable {
		s.pendingKnown = false
		return
	}

	if pressed != s.pending {
		s.pending = pressed
		s.pendingSince = now
		return
	}

	if now.Sub(s.pendingSince) < s.opts.Debounce {
		return
	}

	// Debounce window elapsed with a stable change: commit the transition.
	s.stable = pressed
	s.pendingKnown = false

	if pressed {
		s.pressedAt = now
		return
	}
	s.onRelease(now)
}

func (s *Source) onRelease(now time.Time) {
	duration := now.Sub(s.pressedAt)

	if duration >= s.opts.HoldThreshold {
		s.emit(adapters.ButtonHold, now)
		return
	}

	s.mu.Lock()
	if s.pendingClick && now.Sub(s.clickReleaseAt) <= s.opts.DoubleClickWindow {
		s.clickTimer.Stop()
		s.pendingClick = false
		s.mu.Unlock()
		s.emit(adapters.ButtonDoubleClick, now)
		return
	}

	s.pendingClick = true
	s.clickReleaseAt = now
	s.clickTimer = time.AfterFunc(s.opts.DoubleClickWindow, func() {
		s.mu.Lock()
		if !s.pendingClick {
			s.mu.Unlock()
			return
		}
		s.pendingClick = false
		s.mu.Unlock()
		s.emit(adapters.ButtonClick, time.Now())
	})
	s.mu.Unlock()
}

func (s *Source) emit(action adapters.ButtonAction, at time.Time) {
	ev := adapters.ButtonEvent{Action: action, At: at}
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		// Drop rather than block the poll loop; the bus has its own
		// overflow policy once the event reaches it.
	}
}
