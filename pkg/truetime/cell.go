package truetime

import (
	"sync"

	"github.com/andrewlester/truetime/internal/ntp"
)

// ReferenceTime is the client's best current estimate of true wall time,
// captured alongside the monotonic uptime at which it was observed. Data
// stored in a ReferenceTime must not be mutated after construction.
type ReferenceTime struct {
	WallTime         ntp.Time64
	UptimeAtResponse ntp.Uptime
	ServerResponse   *Sample // nil if this reference predates any network sample
	StartTime        *ntp.Time64
	SampleSize       int
	Host             string
}

// Now returns WallTime advanced by however much monotonic time has
// elapsed since UptimeAtResponse. Safe to call from any goroutine at any
// time; it never blocks and never mutates r.
func (r ReferenceTime) Now() ntp.Time64 {
	elapsedMS := ntp.Now().Sub(r.UptimeAtResponse)
	return r.WallTime.AddMilliseconds(elapsedMS)
}

// UptimeInterval returns how long ago UptimeAtResponse was, as of now.
func (r ReferenceTime) UptimeInterval() int64 {
	return ntp.Now().Sub(r.UptimeAtResponse)
}

// referenceCell is a linearisable holder of the latest accepted
// ReferenceTime. Readers never observe a torn value: Get and Set both
// take the same mutex for the duration of a plain struct copy. Modeled on
// the mutex-cell pattern used elsewhere in this codebase for holding a
// clock reading that updates in place without changing identity.
type referenceCell struct {
	mu    sync.Mutex
	value *ReferenceTime
}

func newReferenceCell() *referenceCell {
	return &referenceCell{}
}

// Get returns a snapshot of the cell's contents, or nil if no reference
// has ever been set.
func (c *referenceCell) Get() *ReferenceTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return nil
	}
	snapshot := *c.value
	return &snapshot
}

// Set replaces the cell's contents. The cell's wall time may step in
// either direction across successive Set calls; callers must not assume
// monotonicity of the stored WallTime, only of the cell's identity.
func (c *referenceCell) Set(value ReferenceTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = &value
}
