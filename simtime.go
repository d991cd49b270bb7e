package shadow

//
// Virtual time (spec.md §3 "Virtual time (SimTime)")
//

import "fmt"

// SimTime is an unsigned 64-bit count of simulated nanoseconds since
// epoch 0. All durations and timestamps in this package use this type;
// none of them ever derive from the wall clock.
type SimTime uint64

// Time units, expressed in simulated nanoseconds.
const (
	Nanosecond  SimTime = 1
	Microsecond         = 1000 * Nanosecond
	Millisecond         = 1000 * Microsecond
	Second              = 1000 * Millisecond
	Minute              = 60 * Second
)

// SimTimeInvalid is the maximum representable [SimTime]. It never occurs
// as a real deliver-time; it marks "no deadline" or "not yet known".
const SimTimeInvalid = SimTime(^uint64(0))

// SimTimeZero is the start of the simulation.
const SimTimeZero = SimTime(0)

// Add returns t+d, saturating at [SimTimeInvalid] on overflow.
func (t SimTime) Add(d SimTime) SimTime {
	if d >= SimTimeInvalid-t {
		return SimTimeInvalid
	}
	return t + d
}

// Sub returns t-u, or 0 if u > t (durations are never negative here).
func (t SimTime) Sub(u SimTime) SimTime {
	if u > t {
		return 0
	}
	return t - u
}

// Before reports whether t occurs strictly before u.
func (t SimTime) Before(u SimTime) bool {
	return t < u
}

// After reports whether t occurs strictly after u.
func (t SimTime) After(u SimTime) bool {
	return t > u
}

// String renders the time as seconds with nanosecond precision, e.g.
// "1.050000000s".
func (t SimTime) String() string {
	return fmt.Sprintf("%d.%09ds", uint64(t)/uint64(Second), uint64(t)%uint64(Second))
}

// MinSimTime returns the smaller of a and b.
func MinSimTime(a, b SimTime) SimTime {
	if a < b {
		return a
	}
	return b
}

// MaxSimTime returns the larger of a and b.
func MaxSimTime(a, b SimTime) SimTime {
	if a > b {
		return a
	}
	return b
}
