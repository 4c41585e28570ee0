package ntp

import "time"

// SecondsFrom1900To1970 is the gap between the NTP epoch (1 Jan 1900 UTC)
// and the Unix epoch: ((365*70)+17)*86400.
const SecondsFrom1900To1970 int64 = 2_208_988_800

// fracPerMicrosecond is 2^32 / 1_000_000, the scale factor between a
// Time64 fraction and microseconds.
const fracPerMicrosecond = (1 << 32) / 1_000_000

// Time64FromUnix builds an NTP 64-bit timestamp from a Unix (seconds,
// microseconds) pair.
func Time64FromUnix(sec, usec int64) Time64 {
	return Time64{
		Whole:    uint32(sec + SecondsFrom1900To1970),
		Fraction: uint32(usec * fracPerMicrosecond),
	}
}

// Time64FromTime builds an NTP 64-bit timestamp from a time.Time.
func Time64FromTime(t time.Time) Time64 {
	return Time64FromUnix(t.Unix(), int64(t.Nanosecond())/1000)
}

// UnixMilliseconds returns the number of milliseconds since the Unix
// epoch represented by an NTP 64-bit timestamp, as a signed integer so
// that differences between two timestamps can go negative.
func (t Time64) UnixMilliseconds() int64 {
	seconds := int64(t.Whole) - SecondsFrom1900To1970
	microseconds := int64(t.Fraction) / fracPerMicrosecond
	return seconds*1000 + microseconds/1000
}

// Time converts an NTP 64-bit timestamp back to a time.Time.
func (t Time64) Time() time.Time {
	ms := t.UnixMilliseconds()
	return time.UnixMilli(ms)
}

// AddMilliseconds returns a Time64 offset by ms milliseconds (which may
// be negative), at millisecond granularity.
func (t Time64) AddMilliseconds(ms int64) Time64 {
	total := t.UnixMilliseconds() + ms
	sec := total / 1000
	remainderMs := total % 1000
	if remainderMs < 0 {
		sec--
		remainderMs += 1000
	}
	return Time64FromUnix(sec, remainderMs*1000)
}
