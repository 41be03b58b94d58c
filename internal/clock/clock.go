// Package clock abstracts time operations so that timer-driven behavior
// (ring timeouts, reconnect backoff) can be tested deterministically.
// Production code injects Real(); tests inject a Fake and advance it
// manually.
package clock

import "time"

// Clock is the subset of the time package the call layer depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for d, then calls f in its own goroutine. The
	// returned Timer cancels the pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer represents a scheduled call registered with AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. Returns false if the timer has
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
