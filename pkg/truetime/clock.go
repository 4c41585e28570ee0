package truetime

import "github.com/andrewlester/truetime/internal/ntp"

// MonotonicSource is the narrow interface the engine consumes for reading
// monotonic uptime. The default is systemMonotonicSource, which wraps
// CLOCK_MONOTONIC; a Client can be given another implementation through
// withMonotonicSource.
type MonotonicSource interface {
	Uptime() ntp.Uptime
}

// systemMonotonicSource is the default MonotonicSource, grounded in the
// teacher's GetSystemTime: read the platform clock directly, no
// buffering, no caching.
type systemMonotonicSource struct{}

func (systemMonotonicSource) Uptime() ntp.Uptime { return ntp.Now() }
