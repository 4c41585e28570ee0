package ntp

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeRequestRoundTrip(t *testing.T) {
	transmit := Time64{Whole: 0xAABBCCDD, Fraction: 0x11223344}
	buf := EncodeRequest(transmit)

	if len(buf) != PacketSize {
		t.Fatalf("EncodeRequest produced %d bytes, want %d", len(buf), PacketSize)
	}

	decoded, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.TransmitTime != transmit {
		t.Fatalf("TransmitTime = %+v, want %+v", decoded.TransmitTime, transmit)
	}
	if decoded.VersionNumber != RequestVersion || decoded.Mode != RequestMode || decoded.LeapIndicator != RequestLeap {
		t.Fatalf("request header fields not as specified: %+v", decoded)
	}

	zero := Packet{VersionNumber: RequestVersion, Mode: RequestMode, TransmitTime: transmit}
	if decoded != zero {
		t.Fatalf("non-transmit fields were not zero: %+v", decoded)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 47, 49, 100} {
		if _, err := Decode(make([]byte, n)); err != ErrBadPacketLength {
			t.Fatalf("Decode(%d bytes): got err %v, want ErrBadPacketLength", n, err)
		}
	}
}

// TestDecodeEncodeRoundTrip is the fuzz-style property: for any random
// 48-byte buffer, decoding then re-encoding reproduces the same bytes.
func TestDecodeEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		buf := make([]byte, PacketSize)
		rng.Read(buf)

		packet, err := Decode(buf)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		roundTripped := Encode(packet)
		if !bytes.Equal(buf, roundTripped) {
			t.Fatalf("round trip mismatch\n got: % x\nwant: % x", roundTripped, buf)
		}
	}
}
