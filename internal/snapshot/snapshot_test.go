package snapshot

import (
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
)

func TestSubscribeDeliversCurrentSnapshotFirst(t *testing.T) {
	b := New(nil)
	b.Publish(Snapshot{Mcb: adapters.McbOn, At: time.Unix(1, 0)})

	_, sub := b.Subscribe()

	done := make(chan struct{})
	defer close(done)

	snap, ok := sub.Recv(done)
	if !ok {
		t.Fatal("expected an immediate snapshot on subscribe")
	}
	if snap.Mcb != adapters.McbOn {
		t.Errorf("got %v, want McbOn", snap.Mcb)
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(nil)
	_, sub := b.Subscribe() // delivers the zero-value current snapshot first

	done := make(chan struct{})
	defer close(done)
	sub.Recv(done) // drain the initial delivery

	for i := 0; i < 3; i++ {
		b.Publish(Snapshot{At: time.Unix(int64(i), 0)})
	}

	for i := 0; i < 3; i++ {
		snap, ok := sub.Recv(done)
		if !ok {
			t.Fatal("expected snapshot")
		}
		if snap.At.Unix() != int64(i) {
			t.Errorf("got %v, want %v", snap.At.Unix(), i)
		}
	}
}

func TestSlowConsumerDropsOldestPending(t *testing.T) {
	b := New(nil)
	_, sub := b.Subscribe()

	done := make(chan struct{})
	defer close(done)
	sub.Recv(done) // drain initial delivery

	// Fill the depth-8 buffer, then overflow it by one.
	for i := 0; i < SubscriberBufferDepth+1; i++ {
		b.Publish(Snapshot{At: time.Unix(int64(i), 0)})
	}

	first, ok := sub.Recv(done)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if first.At.Unix() != 1 {
		t.Errorf("expected oldest-surviving timestamp 1 (0 was dropped), got %v", first.At.Unix())
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(nil)
	id, _ := b.Subscribe()

	b.Unsubscribe(id)
	b.Unsubscribe(id) // must not panic or error

	b.mu.Lock()
	_, stillPresent := b.subs[id]
	b.mu.Unlock()
	if stillPresent {
		t.Error("expected subscriber to be removed")
	}
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	b := New(nil)
	b.Unsubscribe("does-not-exist")
}

func TestMultipleSubscribersEachGetTheirOwnCopy(t *testing.T) {
	b := New(nil)
	_, subA := b.Subscribe()
	_, subB := b.Subscribe()

	done := make(chan struct{})
	defer close(done)
	subA.Recv(done)
	subB.Recv(done)

	b.Publish(Snapshot{Mcb: adapters.McbOff, At: time.Unix(5, 0)})

	snapA, _ := subA.Recv(done)
	snapB, _ := subB.Recv(done)
	if snapA.Mcb != adapters.McbOff || snapB.Mcb != adapters.McbOff {
		t.Error("expected both subscribers to observe the published snapshot")
	}
}

func TestRecvReturnsFalseWhenDone(t *testing.T) {
	b := New(nil)
	_, sub := b.Subscribe()

	drainDone := make(chan struct{})
	sub.Recv(drainDone) // drain the initial delivery so the buffer is empty
	close(drainDone)

	done := make(chan struct{})
	close(done)

	_, ok := sub.Recv(done)
	if ok {
		t.Error("expected Recv to report false once done is closed and buffer is empty")
	}
}
