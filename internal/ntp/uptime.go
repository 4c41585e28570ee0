package ntp

import "golang.org/x/sys/unix"

// Uptime is a monotonic duration since some fixed but unspecified origin
// (boot, on platforms that expose it), expressed the same way the wire
// timestamps are: whole seconds plus microseconds. Only differences
// between two Uptime values are meaningful.
type Uptime struct {
	Sec  int64
	Usec int64
}

// Milliseconds returns the Uptime as signed milliseconds, matching the
// precision used for response timing throughout the sampling engine.
func (u Uptime) Milliseconds() int64 {
	return u.Sec*1000 + u.Usec/1000
}

// Sub returns u-other in milliseconds.
func (u Uptime) Sub(other Uptime) int64 {
	return u.Milliseconds() - other.Milliseconds()
}

// Now reads the platform's monotonic clock via CLOCK_MONOTONIC. It is
// guaranteed non-decreasing across successive calls within a process,
// which is all the sampling engine requires of it; it carries no
// relationship to wall-clock time.
func Now() Uptime {
	var ts unix.Timespec
	// CLOCK_MONOTONIC never fails for a valid *Timespec, so the error is
	// ignored.
	unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return Uptime{Sec: int64(ts.Sec), Usec: int64(ts.Nsec) / 1000}
}
