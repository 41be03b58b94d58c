package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresDueTimersInDeadlineOrder(t *testing.T) {
	t.Parallel()
	f := NewFake()

	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	f.Advance(3 * time.Second)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("after 3s: fired %v, want [a b]", fired)
	}

	f.Advance(2 * time.Second)
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("after 5s: fired %v, want [a b c]", fired)
	}
}

func TestFakeStopPreventsFiring(t *testing.T) {
	t.Parallel()
	f := NewFake()

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop on a pending timer returned false")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}

	f.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestFakeTimerCallbackMayScheduleAnother(t *testing.T) {
	t.Parallel()
	f := NewFake()

	var second bool
	f.AfterFunc(time.Second, func() {
		f.AfterFunc(time.Second, func() { second = true })
	})

	f.Advance(time.Second)
	if second {
		t.Fatal("chained timer fired early")
	}
	f.Advance(time.Second)
	if !second {
		t.Fatal("chained timer never fired")
	}
}

func TestFakeNowAdvances(t *testing.T) {
	t.Parallel()
	f := NewFake()

	before := f.Now()
	f.Advance(90 * time.Second)
	if got := f.Now().Sub(before); got != 90*time.Second {
		t.Fatalf("Now moved by %v, want 90s", got)
	}
}
