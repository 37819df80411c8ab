package ccd

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

var versionTag = []byte("HdInfo:")

// serialNumberLen is fixed by the firmware: a 12-character timestamp with no
// trailing delimiter.
const serialNumberLen = 12

// ParseResponse consumes exactly one response from the front of buf.
//
// It is a pure function over the slice with three outcomes:
//   - (resp, rest, nil): one response parsed, rest is the unused suffix;
//   - (nil, nil, *IncompleteError): the prefix is valid so far but more bytes
//     are required;
//   - (nil, nil, err): the prefix definitely does not start a valid packet.
//     No bytes are consumed; the caller decides whether to resync.
//
// Dispatch is on the first byte: 0x81 starts a binary packet, anything else
// is attempted as the ASCII version-info response.
func ParseResponse(buf []byte) (Response, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, incomplete(1)
	}
	if buf[0] == packetHead {
		return parsePacket(buf)
	}
	return parseVersionInfo(buf)
}

func parsePacket(buf []byte) (Response, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, incomplete(1)
	}
	switch buf[1] {
	case 0x01:
		return parseSingleReading(buf)
	case 0x02:
		return parseExposureTime(buf)
	case 0x0E:
		return parseAverageTime(buf)
	case 0x16:
		return parseSerialBaudRate(buf)
	}
	return nil, nil, fmt.Errorf("%w: unknown opcode 0x%02X", ErrInvalidData, buf[1])
}

// parseSingleReading decodes a pixel-frame packet:
// 0x81 0x01 scan_hi scan_lo 0x00 <2*frameTotalCount sample bytes> crc_hi crc_lo.
// The checksum is the wrapping u16 sum of the raw sample bytes. It is always
// computed and carried on the reading; enforcement is left to the caller
// because some firmware revisions emit packets with a wrong CRC.
func parseSingleReading(buf []byte) (Response, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, incomplete(4 - len(buf))
	}
	scanSize := binary.BigEndian.Uint16(buf[2:4])
	// Zero is accepted: some firmware revisions leave the field blank.
	if scanSize != 2*frameTotalCount && scanSize != 0 {
		return nil, nil, fmt.Errorf("%w: unexpected scan size %d", ErrInvalidData, scanSize)
	}
	if len(buf) < PacketHeaderSize {
		return nil, nil, incomplete(PacketHeaderSize - len(buf))
	}
	if buf[4] != 0x00 {
		return nil, nil, fmt.Errorf("%w: bad frame header byte 0x%02X", ErrInvalidData, buf[4])
	}
	if len(buf) < FramePacketSize {
		return nil, nil, incomplete(FramePacketSize - len(buf))
	}

	data := buf[PacketHeaderSize : PacketHeaderSize+2*frameTotalCount]
	var crc uint16
	for _, b := range data {
		crc += uint16(b)
	}

	var r SingleReading
	for i := 0; i < FramePixelCount; i++ {
		off := 2 * (framePixelPrefix + i)
		r.Frame[i] = binary.BigEndian.Uint16(data[off : off+2])
	}
	r.CRC = crc
	r.WireCRC = binary.BigEndian.Uint16(buf[FramePacketSize-2 : FramePacketSize])
	return r, buf[FramePacketSize:], nil
}

func parseExposureTime(buf []byte) (Response, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, incomplete(4 - len(buf))
	}
	t := binary.BigEndian.Uint16(buf[2:4])
	if len(buf) < 5 {
		return nil, nil, incomplete(1)
	}
	if buf[4] != 0xFF {
		return nil, nil, fmt.Errorf("%w: bad terminator 0x%02X", ErrInvalidData, buf[4])
	}
	return ExposureTime(t), buf[5:], nil
}

func parseAverageTime(buf []byte) (Response, []byte, error) {
	if len(buf) < 3 {
		return nil, nil, incomplete(3 - len(buf))
	}
	t := buf[2]
	if len(buf) < 4 {
		return nil, nil, incomplete(1)
	}
	if buf[3] != 0x00 {
		return nil, nil, fmt.Errorf("%w: bad padding byte 0x%02X", ErrInvalidData, buf[3])
	}
	if len(buf) < 5 {
		return nil, nil, incomplete(1)
	}
	if buf[4] != 0xFF {
		return nil, nil, fmt.Errorf("%w: bad terminator 0x%02X", ErrInvalidData, buf[4])
	}
	return AverageTime(t), buf[5:], nil
}

func parseSerialBaudRate(buf []byte) (Response, []byte, error) {
	if len(buf) < 3 {
		return nil, nil, incomplete(3 - len(buf))
	}
	code := buf[2]
	if len(buf) < 4 {
		return nil, nil, incomplete(1)
	}
	if buf[3] != 0x00 {
		return nil, nil, fmt.Errorf("%w: bad padding byte 0x%02X", ErrInvalidData, buf[3])
	}
	if len(buf) < 5 {
		return nil, nil, incomplete(1)
	}
	if buf[4] != 0xFF {
		return nil, nil, fmt.Errorf("%w: bad terminator 0x%02X", ErrInvalidData, buf[4])
	}
	baud, err := baudRateFromCode(code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: code 0x%02X", err, code)
	}
	return SerialBaudRate(baud), buf[5:], nil
}

func isSeparator(b byte) bool { return b == ' ' || b == ',' }

// token reads one field plus the one-or-more separators that follow it.
// Separator consumption is greedy, so a separator at the very end of buf is
// Incomplete: the next fill may bring more of them.
func token(buf []byte) (word, rest []byte, err error) {
	i := 0
	for i < len(buf) && !isSeparator(buf[i]) {
		i++
	}
	if i == len(buf) {
		return nil, nil, incomplete(1)
	}
	if i == 0 {
		return nil, nil, fmt.Errorf("%w: empty version field", ErrInvalidData)
	}
	j := i
	for j < len(buf) && isSeparator(buf[j]) {
		j++
	}
	if j == len(buf) {
		return nil, nil, incomplete(1)
	}
	return buf[:i], buf[j:], nil
}

// parseVersionInfo decodes the ASCII response
// "HdInfo:<hw>,<sensor>,<fw>,<serial>" where the serial number is exactly
// serialNumberLen characters and carries no trailing delimiter. Fields are
// separated by one or more of space or comma, depending on firmware.
func parseVersionInfo(buf []byte) (Response, []byte, error) {
	if !bytes.HasPrefix(buf, versionTag) {
		if len(buf) < len(versionTag) && bytes.HasPrefix(versionTag, buf) {
			return nil, nil, incomplete(len(versionTag) - len(buf))
		}
		return nil, nil, fmt.Errorf("%w: not a response prefix", ErrInvalidData)
	}
	rest := buf[len(versionTag):]

	var fields [3][]byte
	for i := range fields {
		var err error
		fields[i], rest, err = token(rest)
		if err != nil {
			return nil, nil, err
		}
	}
	if len(rest) < serialNumberLen {
		return nil, nil, incomplete(serialNumberLen - len(rest))
	}
	serial := rest[:serialNumberLen]

	details, err := newVersionDetails(
		string(fields[0]), string(fields[1]), string(fields[2]), string(serial))
	if err != nil {
		return nil, nil, err
	}
	return VersionInfo(details), rest[serialNumberLen:], nil
}

// Align drops bytes from the front of buf until the first offset at which a
// response could begin: a 0x81 packet head or the full "HdInfo:" tag. The
// 0x81 match is a heuristic; the byte after it may still fail opcode
// validation, which the caller handles through a regular parse attempt.
//
// If no start is found, ok is false and the returned slice holds the longest
// buffer suffix that could still grow into the ASCII tag once more bytes
// arrive (a one-byte packet head cannot straddle two fills, the tag can).
func Align(buf []byte) ([]byte, bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] == packetHead || bytes.HasPrefix(buf[i:], versionTag) {
			return buf[i:], true
		}
	}
	for k := min(len(buf), len(versionTag)-1); k > 0; k-- {
		if bytes.HasPrefix(versionTag, buf[len(buf)-k:]) {
			return buf[len(buf)-k:], false
		}
	}
	return nil, false
}
