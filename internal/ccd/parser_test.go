package ccd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// framePacket builds a well-formed pixel-frame packet with every sample set
// to px. tweak, if non-nil, mutates the packet before it is returned.
func framePacket(px uint16, tweak func([]byte)) []byte {
	pkt := make([]byte, FramePacketSize)
	pkt[0] = 0x81
	pkt[1] = 0x01
	binary.BigEndian.PutUint16(pkt[2:4], 2*frameTotalCount)
	pkt[4] = 0x00
	var crc uint16
	for i := 0; i < frameTotalCount; i++ {
		off := PacketHeaderSize + 2*i
		binary.BigEndian.PutUint16(pkt[off:off+2], px)
		crc += uint16(pkt[off]) + uint16(pkt[off+1])
	}
	binary.BigEndian.PutUint16(pkt[FramePacketSize-2:], crc)
	if tweak != nil {
		tweak(pkt)
	}
	return pkt
}

func TestParseShortResponses(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want Response
	}{
		{"baud_rate", []byte{0x81, 0x16, 0x01, 0x00, 0xFF}, SerialBaudRate(Baud115200)},
		{"exposure_time", []byte{0x81, 0x02, 0xAB, 0xCD, 0xFF}, ExposureTime(0xABCD)},
		{"average_time", []byte{0x81, 0x0E, 0xAB, 0x00, 0xFF}, AverageTime(0xAB)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, rest, err := ParseResponse(tc.in)
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if len(rest) != 0 {
				t.Fatalf("unconsumed tail: % X", rest)
			}
			if resp != tc.want {
				t.Fatalf("got %#v, want %#v", resp, tc.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"bad_exposure_terminator", []byte{0x81, 0x02, 0xAB, 0xCD, 0x00}, ErrInvalidData},
		{"bad_average_padding", []byte{0x81, 0x0E, 0xAB, 0xCD, 0xFF}, ErrInvalidData},
		{"unknown_opcode", []byte{0x81, 0x42, 0x00, 0x00, 0xFF}, ErrInvalidData},
		{"unknown_baud_code", []byte{0x81, 0x16, 0xFF, 0x00, 0xFF}, ErrInvalidBaudRate},
		{"not_a_prefix", []byte("garbage"), ErrInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseResponse(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseIncomplete(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		need int
	}{
		{"empty", nil, 1},
		{"head_only", []byte{0x81}, 1},
		{"no_payload", []byte{0x81, 0x02}, 2},
		{"partial_version_tag", []byte("HdI"), 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseResponse(tc.in)
			need, ok := Incomplete(err)
			if !ok {
				t.Fatalf("error = %v, want IncompleteError", err)
			}
			if need != tc.need {
				t.Fatalf("need = %d, want %d", need, tc.need)
			}
		})
	}
}

// Extending an incomplete buffer by fewer bytes than requested must never
// flip the result to complete or invalid.
func TestParsePrefixMonotonic(t *testing.T) {
	full := framePacket(0x1234, nil)
	for _, cut := range []int{1, 2, 4, PacketHeaderSize, PacketHeaderSize + 7, FramePacketSize - 1} {
		in := full[:cut]
		_, _, err := ParseResponse(in)
		need, ok := Incomplete(err)
		if !ok {
			t.Fatalf("cut=%d: error = %v, want IncompleteError", cut, err)
		}
		for ext := 1; ext < need && ext < 4; ext++ {
			_, _, err := ParseResponse(full[:cut+ext])
			if _, stillInc := Incomplete(err); !stillInc {
				t.Fatalf("cut=%d ext=%d: result flipped to %v", cut, ext, err)
			}
		}
	}
}

func TestParseFrameRoundTrip(t *testing.T) {
	pkt := framePacket(0xABCD, nil)
	resp, rest, err := ParseResponse(pkt)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unconsumed tail: %d bytes", len(rest))
	}
	r, ok := resp.(SingleReading)
	if !ok {
		t.Fatalf("got %T, want SingleReading", resp)
	}
	if !r.CRCValid() {
		t.Fatalf("crc mismatch: computed 0x%04X, wire 0x%04X", r.CRC, r.WireCRC)
	}
	for i, px := range r.Frame {
		if px != 0xABCD {
			t.Fatalf("pixel %d = 0x%04X, want 0xABCD", i, px)
		}
	}
}

func TestParseFrameZeroScanSize(t *testing.T) {
	pkt := framePacket(0x0101, func(p []byte) { p[2], p[3] = 0x00, 0x00 })
	resp, _, err := ParseResponse(pkt)
	if err != nil {
		t.Fatalf("zero scan size must be accepted: %v", err)
	}
	if _, ok := resp.(SingleReading); !ok {
		t.Fatalf("got %T, want SingleReading", resp)
	}
}

func TestParseFrameBadScanSize(t *testing.T) {
	pkt := framePacket(0x0101, func(p []byte) { binary.BigEndian.PutUint16(p[2:4], 100) })
	_, _, err := ParseResponse(pkt)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("error = %v, want ErrInvalidData", err)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	pkt := framePacket(0x0101, nil)
	_, _, err := ParseResponse(pkt[:len(pkt)-10])
	need, ok := Incomplete(err)
	if !ok {
		t.Fatalf("error = %v, want IncompleteError", err)
	}
	if need != 10 {
		t.Fatalf("need = %d, want exact shortfall 10", need)
	}
}

func TestParseFrameBadCRCStillDelivered(t *testing.T) {
	pkt := framePacket(0x0101, func(p []byte) { p[len(p)-1] ^= 0xFF })
	resp, _, err := ParseResponse(pkt)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	r := resp.(SingleReading)
	if r.CRCValid() {
		t.Fatal("corrupted checksum must not validate")
	}
}

func TestParseVersionInfo(t *testing.T) {
	in := []byte("HdInfo:LCAM_V8.4.2,S11639,V4.2,202111161548")
	resp, rest, err := ParseResponse(in)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("unconsumed tail: %q", rest)
	}
	want := VersionInfo{
		HardwareVersion: "LCAM_V8.4.2",
		SensorType:      "S11639",
		FirmwareVersion: "V4.2",
		SerialNumber:    "202111161548",
	}
	if resp != want {
		t.Fatalf("got %#v, want %#v", resp, want)
	}
}

func TestParseVersionInfoSpaceSeparators(t *testing.T) {
	in := []byte("HdInfo:LCAM_V8.4.2, S11639 , V4.2,202111161548")
	resp, _, err := ParseResponse(in)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	v := resp.(VersionInfo)
	if v.SensorType != "S11639" || v.SerialNumber != "202111161548" {
		t.Fatalf("got %#v", v)
	}
}

func TestParseVersionInfoIncomplete(t *testing.T) {
	in := []byte("HdInfo:LCAM_V8.4.2,S11639,V4.2,2021")
	_, _, err := ParseResponse(in)
	need, ok := Incomplete(err)
	if !ok {
		t.Fatalf("error = %v, want IncompleteError", err)
	}
	if need != len("202111161548")-len("2021") {
		t.Fatalf("need = %d", need)
	}
}

func TestParseVersionInfoFieldTooLong(t *testing.T) {
	in := []byte("HdInfo:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA,S11639,V4.2,202111161548")
	_, _, err := ParseResponse(in)
	var tooLong *VersionDetailTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("error = %v, want VersionDetailTooLongError", err)
	}
	if tooLong.Field != "hardware version" {
		t.Fatalf("field = %q", tooLong.Field)
	}
}

func TestAlign(t *testing.T) {
	t.Run("skips_leading_spaces", func(t *testing.T) {
		rest, ok := Align([]byte("   HdInfo:"))
		if !ok || string(rest) != "HdInfo:" {
			t.Fatalf("rest = %q ok = %v", rest, ok)
		}
	})
	t.Run("already_aligned_noop", func(t *testing.T) {
		rest, ok := Align([]byte("HdInfo:"))
		if !ok || string(rest) != "HdInfo:" {
			t.Fatalf("rest = %q ok = %v", rest, ok)
		}
	})
	t.Run("finds_packet_head", func(t *testing.T) {
		rest, ok := Align([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x81})
		if !ok || !bytes.Equal(rest, []byte{0x81}) {
			t.Fatalf("rest = % X ok = %v", rest, ok)
		}
	})
	t.Run("rejects_wrong_case_tag", func(t *testing.T) {
		rest, ok := Align([]byte("   HDInfo:"))
		if ok || rest != nil {
			t.Fatalf("rest = %q ok = %v", rest, ok)
		}
	})
	t.Run("keeps_partial_tag_tail", func(t *testing.T) {
		rest, ok := Align([]byte("junkHdIn"))
		if ok || string(rest) != "HdIn" {
			t.Fatalf("rest = %q ok = %v", rest, ok)
		}
	})
	t.Run("idempotent_on_suffix", func(t *testing.T) {
		first, ok := Align([]byte{0x00, 0x01, 0x81, 0x16})
		if !ok {
			t.Fatal("expected alignment")
		}
		second, ok := Align(first)
		if !ok || !bytes.Equal(first, second) {
			t.Fatalf("second align changed result: % X -> % X", first, second)
		}
	})
}

// The parser is a pure function: same bytes in, same outcome out, input
// untouched.
func TestParsePure(t *testing.T) {
	in := framePacket(0x4242, nil)
	snapshot := append([]byte(nil), in...)
	r1, _, err1 := ParseResponse(in)
	r2, _, err2 := ParseResponse(in)
	if !bytes.Equal(in, snapshot) {
		t.Fatal("input mutated")
	}
	if (err1 == nil) != (err2 == nil) || r1 != r2 {
		t.Fatal("parse is not deterministic")
	}
}
