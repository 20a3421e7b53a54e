// Package snapshot maintains the supervisor's current live-state snapshot
// and fans changes out to subscribed UI clients (spec.md §4.C). Each
// subscriber gets its own depth-8 buffer with a drop-oldest slow-consumer
// policy — liveness over history — adapted directly from the old
// internal/mqtt ring buffer, which buffered outbound MQTT messages the same
// way while disconnected.
package snapshot

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
)

// SubscriberBufferDepth is the per-subscriber buffer depth from spec.md §4.C.
const SubscriberBufferDepth = 8

// Snapshot is the immutable record handed to subscribers. All pointer
// fields are nil until the corresponding reading has ever arrived.
type Snapshot struct {
	Mcb             adapters.McbState
	Phases          *adapters.PhaseReading
	Temperature     *adapters.TemperatureReading
	Door            *adapters.DoorReading
	VentilatorIsOn  *bool
	// VentilatorDelayedOffRemainingMs is the delayed-off timer's remaining
	// time, the second field of the ventilator{} live record in spec.md §4.C.
	// Zero when no delayed-off is pending.
	VentilatorDelayedOffRemainingMs int64
	FloorHeating                    *adapters.FloorHeatingState
	LastSafetyError                 string

	// FallbackMcb and FallbackMcbAt surface the non-authoritative MCB
	// source's last observation, per SPEC_FULL.md §5.1. Nil until that
	// source has reported anything.
	FallbackMcb   *adapters.McbState
	FallbackMcbAt *time.Time

	At time.Time
}

// Broadcaster stores the latest snapshot and delivers changes to
// subscribers in the order they were published (invariant 7, spec.md §3).
type Broadcaster struct {
	mu      sync.Mutex
	current Snapshot
	subs    map[string]*Subscription
	metrics *metrics.Metrics
}

// New creates a Broadcaster. The initial current snapshot has a zero value
// until the first Publish.
func New(m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[string]*Subscription),
		metrics: m,
	}
}

// Publish stores newSnapshot as current and delivers it to every
// subscriber.
func (b *Broadcaster) Publish(newSnapshot Snapshot) {
	b.mu.Lock()
	b.current = newSnapshot
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(newSnapshot, b.metrics)
	}
}

// Current returns the latest published snapshot.
func (b *Broadcaster) Current() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a new subscriber and immediately delivers the
// current snapshot to it as the first event (spec.md §4.C). The returned
// id is also usable with Unsubscribe.
func (b *Broadcaster) Subscribe() (id string, sub *Subscription) {
	id = uuid.NewString()
	sub = newSubscription(id)

	b.mu.Lock()
	b.subs[id] = sub
	current := b.current
	b.mu.Unlock()

	sub.push(current, b.metrics)
	return id, sub
}

// Unsubscribe removes a subscriber. It is idempotent: unsubscribing an
// unknown or already-removed id is a no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		log.Printf("snapshot: subscriber %s removed", id)
	}
}

// Subscription is a single subscriber's depth-8 snapshot buffer.
type Subscription struct {
	id     string
	mu     sync.Mutex
	buf    [SubscriberBufferDepth]Snapshot
	head   int
	count  int
	notify chan struct{}
}

func newSubscription(id string) *Subscription {
	return &Subscription{
		id:     id,
		notify: make(chan struct{}, 1),
	}
}

// ID returns the subscriber's identifier, the one surfaced in the
// synthetic connected{subscriberId} record.
func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) push(snap Snapshot, m *metrics.Metrics) {
	s.mu.Lock()
	if s.count == SubscriberBufferDepth {
		// Slow consumer: discard the oldest pending snapshot, keep the new one.
		s.head = (s.head + 1) % SubscriberBufferDepth
		s.count--
		m.SnapshotDiscarded()
	}
	tail := (s.head + s.count) % SubscriberBufferDepth
	s.buf[tail] = snap
	s.count++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv blocks until a snapshot is available or done is closed.
func (s *Subscription) Recv(done <-chan struct{}) (Snapshot, bool) {
	for {
		s.mu.Lock()
		if s.count > 0 {
			snap := s.buf[s.head]
			s.head = (s.head + 1) % SubscriberBufferDepth
			s.count--
			s.mu.Unlock()
			return snap, true
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
			continue
		case <-done:
			return Snapshot{}, false
		}
	}
}
