package event

import "testing"

func TestBusFanOut(t *testing.T) {
	t.Parallel()
	bus := NewBus[int]()

	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	bus.Publish(1)
	bus.Publish(2)

	for name, ch := range map[string]<-chan int{"a": a, "b": b} {
		if got := <-ch; got != 1 {
			t.Errorf("%s: first event = %d, want 1", name, got)
		}
		if got := <-ch; got != 2 {
			t.Errorf("%s: second event = %d, want 2", name, got)
		}
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	t.Parallel()
	bus := NewBus[int]()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // safe to repeat

	// The channel closes, so consumers ranging over it terminate.
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Publishing to a bus with no subscribers must not panic.
	bus.Publish(1)
}

func TestBusSlowSubscriberLosesOldest(t *testing.T) {
	t.Parallel()
	bus := NewBus[int]()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Overflow the buffer without draining.
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(i)
	}

	// The oldest events were dropped; the newest survives at the tail.
	var got []int
	for {
		select {
		case v := <-ch:
			got = append(got, v)
			continue
		default:
		}
		break
	}
	if len(got) != subscriberBuffer {
		t.Fatalf("buffered events: got %d, want %d", len(got), subscriberBuffer)
	}
	if got[len(got)-1] != subscriberBuffer+4 {
		t.Fatalf("newest event: got %d, want %d", got[len(got)-1], subscriberBuffer+4)
	}
}
