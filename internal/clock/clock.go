// Package clock provides the wall-clock seam used by the lifecycle manager,
// the health monitor and the orchestrator.
//
// Production code uses Real. Tests substitute testutil.FakeClock so that
// heartbeat ages, restart backoff windows and stored timestamps are exact.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real is the system clock. Times are returned in UTC.
type Real struct{}

// Now returns time.Now in UTC.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Or returns c, or Real if c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
