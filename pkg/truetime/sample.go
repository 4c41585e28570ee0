package truetime

import (
	"net"

	"github.com/andrewlester/truetime/internal/ntp"
)

// Sample is a single accepted (packet, timing) tuple from one UDP
// exchange. It is immutable once constructed.
type Sample struct {
	Packet         ntp.Packet
	StartTime      ntp.Time64 // client-chosen transmit timestamp, used to correlate the reply
	RequestTicks   ntp.Uptime
	ResponseTicks  ntp.Uptime
	ResponseTimeMS int64
	OffsetMS       int64
	DelayMS        int64
	ServerHost     string
	Address        net.Addr
}

// acceptableResponse holds everything the validator needs that isn't
// already on the decoded packet: the monotonic timing straddling the
// exchange and the host/address the reply came from.
type acceptableResponse struct {
	packet         ntp.Packet
	startTime      ntp.Time64
	requestTicks   ntp.Uptime
	responseTicks  ntp.Uptime
	responseTimeMS int64
	host           string
	address        net.Addr
}

// validate applies every acceptance predicate and, if all pass, returns a
// Sample. A packet enters the selector only via this path.
func validate(r acceptableResponse, maxDispersionMS int64) (Sample, error) {
	p := r.packet

	if p.Stratum < 1 || p.Stratum >= 16 {
		return Sample{}, ErrBadServerResponse
	}
	if p.RootDelay.Milliseconds() >= maxDispersionMS {
		return Sample{}, ErrBadServerResponse
	}
	if p.RootDispersion.Milliseconds() >= maxDispersionMS {
		return Sample{}, ErrBadServerResponse
	}
	if p.Mode != ntp.ModeServer {
		return Sample{}, ErrBadServerResponse
	}
	if p.LeapIndicator == ntp.LeapUnknown {
		return Sample{}, ErrBadServerResponse
	}

	t0 := p.OriginateTime.UnixMilliseconds()
	t1 := p.ReceiveTime.UnixMilliseconds()
	t2 := p.TransmitTime.UnixMilliseconds()
	t3 := r.responseTimeMS

	offset := ((t1 - t0) + (t2 - t3)) / 2
	delay := (t3 - t0) - (t2 - t1)

	if abs64(t1-t0-delay) >= maxDispersionMS {
		return Sample{}, ErrBadServerResponse
	}

	return Sample{
		Packet:         p,
		StartTime:      r.startTime,
		RequestTicks:   r.requestTicks,
		ResponseTicks:  r.responseTicks,
		ResponseTimeMS: t3,
		OffsetMS:       offset,
		DelayMS:        delay,
		ServerHost:     r.host,
		Address:        r.address,
	}, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
