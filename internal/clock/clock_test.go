package clock

import (
	"testing"
	"time"
)

func TestAfterFiresOnce(t *testing.T) {
	events := make(chan Event, 4)
	svc := New(func(e Event) { events <- e })

	svc.After(10 * time.Millisecond)

	select {
	case ev := <-events:
		if !svc.Dispatch(ev) {
			t.Errorf("expected dispatch to accept fresh event")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer did not fire")
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected second fire: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelPreventsFire(t *testing.T) {
	events := make(chan Event, 4)
	svc := New(func(e Event) { events <- e })

	h := svc.After(20 * time.Millisecond)
	svc.Cancel(h)

	select {
	case ev := <-events:
		t.Fatalf("cancelled timer fired: %+v", ev)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	svc := New(func(Event) {})
	h := svc.After(time.Hour)
	svc.Cancel(h)
	svc.Cancel(h) // must not panic
}

func TestEveryFiresRepeatedly(t *testing.T) {
	events := make(chan Event, 8)
	svc := New(func(e Event) { events <- e })

	h := svc.Every(10 * time.Millisecond)
	defer svc.Cancel(h)

	for i := 0; i < 3; i++ {
		select {
		case <-events:
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("tick %d did not arrive", i)
		}
	}
}

func TestDispatchRejectsStaleGenerationAfterCancelAndRearm(t *testing.T) {
	events := make(chan Event, 4)
	svc := New(func(e Event) { events <- e })

	h := svc.After(5 * time.Millisecond)

	var stale Event
	select {
	case stale = <-events:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer did not fire")
	}

	svc.Cancel(h) // handle id now free of any live timer

	if svc.Dispatch(stale) {
		t.Error("expected stale event to be rejected once its timer is cancelled")
	}
}
