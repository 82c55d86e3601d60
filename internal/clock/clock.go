// Package clock provides a swappable time source so timeout-driven logic
// can be tested with virtual time.
package clock

import "time"

// Clock is the time source used by the scanner and fleet supervisor.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

// New returns the system clock.
func New() Real {
	return Real{}
}

// Now returns the current wall-clock time.
func (Real) Now() time.Time {
	return time.Now()
}

// After wraps time.After.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
