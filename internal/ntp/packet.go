// Package ntp holds the wire-level building blocks shared by the sampling
// engine: the fixed 48-byte NTP packet layout, the 32/64-bit NTP timestamp
// types, and the platform time sources the engine reads from. Nothing in
// this package knows about pools, retries, or selection; it only knows how
// to put bytes on the wire and take them back off.
package ntp

import "errors"

// PacketSize is the length in bytes of an NTPv3 packet as transmitted on
// the wire. Anything else received on the socket is not a packet.
const PacketSize = 48

// ErrBadPacketLength is returned by Decode when the supplied buffer is not
// exactly PacketSize bytes long.
var ErrBadPacketLength = errors.New("ntp: packet must be 48 bytes")

// Mode is the three-bit NTP association mode carried in the low bits of
// the first packet byte.
type Mode byte

const (
	ModeReserved Mode = iota
	ModeSymmetricActive
	ModeSymmetricPassive
	ModeClient
	ModeServer
	ModeBroadcast
	ModeControl
	ModeReservedPrivate
)

// LeapIndicator is the two-bit leap-second warning carried in the high
// bits of the first packet byte. LeapUnknown ("not synchronized") marks a
// server that has no business answering queries.
type LeapIndicator byte

const (
	LeapNone LeapIndicator = iota
	LeapAddSecond
	LeapDelSecond
	LeapUnknown
)

// RequestVersion and RequestMode are the fields a client request MUST
// carry per the wire format: version 3, mode client, leap unset.
const (
	RequestVersion byte = 3
	RequestMode         = ModeClient
	RequestLeap         = LeapNone
)

// Time32 is a 32-bit NTP timestamp: a whole-seconds count plus a 16-bit
// binary fraction of a second. Used for root delay and root dispersion.
type Time32 struct {
	Whole    uint16
	Fraction uint16
}

// Milliseconds returns the duration represented by a Time32 in
// milliseconds, rounding the fractional component down.
func (t Time32) Milliseconds() int64 {
	return int64(t.Whole)*1000 + int64(t.Fraction)*1000/(1<<16)
}

// Time64 is a 64-bit NTP timestamp: whole seconds since the NTP epoch (1
// Jan 1900 UTC) plus a 32-bit binary fraction of a second.
type Time64 struct {
	Whole    uint32
	Fraction uint32
}

// Packet is the decoded form of a 48-byte NTPv3 datagram. Field order
// matches the wire layout exactly; ReferenceID is left as raw bytes since
// its interpretation (IP, ASCII refclock code, hash) depends on Stratum.
type Packet struct {
	LeapIndicator LeapIndicator
	VersionNumber byte
	Mode          Mode

	Stratum   byte /* distance from reference clock, 1 = primary */
	Poll      int8 /* poll interval, log2 seconds */
	Precision int8 /* clock precision, log2 seconds */

	RootDelay      Time32
	RootDispersion Time32
	ReferenceID    [4]byte

	ReferenceTime Time64
	OriginateTime Time64
	ReceiveTime   Time64
	TransmitTime  Time64
}

// EncodeRequest builds a 48-byte client request carrying transmit as the
// transmit timestamp. Every other field is zero, matching the request
// layout in the wire format.
func EncodeRequest(transmit Time64) []byte {
	packet := Packet{
		LeapIndicator: RequestLeap,
		VersionNumber: RequestVersion,
		Mode:          RequestMode,
		TransmitTime:  transmit,
	}
	return Encode(packet)
}

// Encode serializes packet into a 48-byte big-endian buffer.
func Encode(packet Packet) []byte {
	buf := make([]byte, PacketSize)

	buf[0] = byte(packet.LeapIndicator)<<6 | (packet.VersionNumber&0b111)<<3 | byte(packet.Mode)&0b111
	buf[1] = packet.Stratum
	buf[2] = byte(packet.Poll)
	buf[3] = byte(packet.Precision)

	putTime32(buf[4:8], packet.RootDelay)
	putTime32(buf[8:12], packet.RootDispersion)
	copy(buf[12:16], packet.ReferenceID[:])

	putTime64(buf[16:24], packet.ReferenceTime)
	putTime64(buf[24:32], packet.OriginateTime)
	putTime64(buf[32:40], packet.ReceiveTime)
	putTime64(buf[40:48], packet.TransmitTime)

	return buf
}

// Decode parses a 48-byte big-endian buffer into a Packet. It does not
// validate the semantic content of the packet; see the validator for
// acceptance predicates.
func Decode(buf []byte) (Packet, error) {
	if len(buf) != PacketSize {
		return Packet{}, ErrBadPacketLength
	}

	var packet Packet
	packet.LeapIndicator = LeapIndicator(buf[0] >> 6)
	packet.VersionNumber = (buf[0] >> 3) & 0b111
	packet.Mode = Mode(buf[0] & 0b111)
	packet.Stratum = buf[1]
	packet.Poll = int8(buf[2])
	packet.Precision = int8(buf[3])

	packet.RootDelay = getTime32(buf[4:8])
	packet.RootDispersion = getTime32(buf[8:12])
	copy(packet.ReferenceID[:], buf[12:16])

	packet.ReferenceTime = getTime64(buf[16:24])
	packet.OriginateTime = getTime64(buf[24:32])
	packet.ReceiveTime = getTime64(buf[32:40])
	packet.TransmitTime = getTime64(buf[40:48])

	return packet, nil
}

func putTime32(dst []byte, t Time32) {
	dst[0] = byte(t.Whole >> 8)
	dst[1] = byte(t.Whole)
	dst[2] = byte(t.Fraction >> 8)
	dst[3] = byte(t.Fraction)
}

func getTime32(src []byte) Time32 {
	return Time32{
		Whole:    uint16(src[0])<<8 | uint16(src[1]),
		Fraction: uint16(src[2])<<8 | uint16(src[3]),
	}
}

func putTime64(dst []byte, t Time64) {
	dst[0] = byte(t.Whole >> 24)
	dst[1] = byte(t.Whole >> 16)
	dst[2] = byte(t.Whole >> 8)
	dst[3] = byte(t.Whole)
	dst[4] = byte(t.Fraction >> 24)
	dst[5] = byte(t.Fraction >> 16)
	dst[6] = byte(t.Fraction >> 8)
	dst[7] = byte(t.Fraction)
}

func getTime64(src []byte) Time64 {
	return Time64{
		Whole:    uint32(src[0])<<24 | uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3]),
		Fraction: uint32(src[4])<<24 | uint32(src[5])<<16 | uint32(src[6])<<8 | uint32(src[7]),
	}
}
