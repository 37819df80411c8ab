package ccd

import "fmt"

// Pixel geometry of the LCAM_V06 sensor. Each reading may be padded with
// ghost pixels on both ends; current firmware ships none, but the constants
// stay as knobs so legacy heads can be supported by changing two numbers.
const (
	// FramePixelCount is the number of effective pixels in one reading.
	FramePixelCount = 3694

	framePixelPrefix  = 0
	framePixelPostfix = 0
	frameTotalCount   = framePixelPrefix + FramePixelCount + framePixelPostfix
)

// Wire sizes.
const (
	// PacketHeaderSize is the size of a command and of every short response.
	PacketHeaderSize = 5
	// FramePacketSize is the full size of a pixel-frame response:
	// HEAD(5) + 2 bytes per pixel + CRC(2).
	FramePacketSize = PacketHeaderSize + 2*frameTotalCount + 2
	// MaxPacketSize is the largest response the device can produce.
	MaxPacketSize = FramePacketSize
)

const packetHead = 0x81

// Frame is one spectrometer reading: an ordered sequence of 16-bit samples,
// ghost pixels already trimmed. It is an array so parses hand it over by value.
type Frame [FramePixelCount]uint16

// TriggerMode selects how the sensor starts an acquisition.
type TriggerMode uint8

const (
	SoftTrigger           TriggerMode = 0x00
	ContinuousHardTrigger TriggerMode = 0x01
	SingleHardTrigger     TriggerMode = 0x02
)

func (m TriggerMode) String() string {
	switch m {
	case SoftTrigger:
		return "soft"
	case ContinuousHardTrigger:
		return "continuous-hard"
	case SingleHardTrigger:
		return "single-hard"
	default:
		return fmt.Sprintf("trigger(0x%02X)", uint8(m))
	}
}

// BaudRate is one of the UART speeds the device supports.
type BaudRate uint32

const (
	Baud115200 BaudRate = 115200
	Baud384000 BaudRate = 384000
	Baud921600 BaudRate = 921600

	// DefaultBaudRate is what the device boots with.
	DefaultBaudRate = Baud115200
)

// SupportedBaudRates lists every speed the firmware accepts, in probe order.
func SupportedBaudRates() []BaudRate {
	return []BaudRate{Baud115200, Baud384000, Baud921600}
}

// Supported reports whether b is a speed the firmware accepts.
func (b BaudRate) Supported() bool {
	switch b {
	case Baud115200, Baud384000, Baud921600:
		return true
	}
	return false
}

// code maps a supported baud rate to its wire code. Callers validate with
// Supported first; an unknown value maps to 0 which no firmware accepts.
func (b BaudRate) code() byte {
	switch b {
	case Baud115200:
		return 0x01
	case Baud384000:
		return 0x02
	case Baud921600:
		return 0x03
	}
	return 0x00
}

func baudRateFromCode(c byte) (BaudRate, error) {
	switch c {
	case 0x01:
		return Baud115200, nil
	case 0x02:
		return Baud384000, nil
	case 0x03:
		return Baud921600, nil
	}
	return 0, ErrInvalidBaudRate
}

func (b BaudRate) String() string { return fmt.Sprintf("%d", uint32(b)) }

// maxVersionDetailLen bounds every VersionDetails field. The protocol never
// produces longer values; anything above the cap is treated as a parse error
// instead of being truncated.
const maxVersionDetailLen = 23

// VersionDetails carries the identification strings reported by GetVersion.
type VersionDetails struct {
	HardwareVersion string
	SensorType      string
	FirmwareVersion string
	// SerialNumber is a 12-character manufacturing timestamp.
	SerialNumber string
}

func newVersionDetails(hw, sensor, fw, serial string) (VersionDetails, error) {
	for _, f := range []struct{ name, val string }{
		{"hardware version", hw},
		{"sensor type", sensor},
		{"firmware version", fw},
		{"serial number", serial},
	} {
		if len(f.val) > maxVersionDetailLen {
			return VersionDetails{}, &VersionDetailTooLongError{Field: f.name}
		}
	}
	return VersionDetails{
		HardwareVersion: hw,
		SensorType:      sensor,
		FirmwareVersion: fw,
		SerialNumber:    serial,
	}, nil
}

func (v VersionDetails) String() string {
	return fmt.Sprintf(
		"Hardware version: %s\nFirmware version: %s\nSensor type: %s\nSerial number: %s",
		v.HardwareVersion, v.FirmwareVersion, v.SensorType, v.SerialNumber)
}

// Kind identifies the variant of a decoded Response.
type Kind uint8

const (
	KindSingleReading Kind = iota + 1
	KindExposureTime
	KindAverageTime
	KindSerialBaudRate
	KindVersionInfo
)

func (k Kind) String() string {
	switch k {
	case KindSingleReading:
		return "single_reading"
	case KindExposureTime:
		return "exposure_time"
	case KindAverageTime:
		return "average_time"
	case KindSerialBaudRate:
		return "serial_baud_rate"
	case KindVersionInfo:
		return "version_info"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Response is one decoded reply from the sensor.
type Response interface {
	Kind() Kind
}

// SingleReading is a pixel-frame response. The additive checksum is always
// computed during the parse; whether a mismatch is fatal is the session's
// decision, so both the computed and the wire value travel with the reading.
type SingleReading struct {
	Frame   Frame
	CRC     uint16 // checksum computed over the sample bytes
	WireCRC uint16 // checksum carried by the packet
}

func (r SingleReading) Kind() Kind { return KindSingleReading }

// CRCValid reports whether the packet checksum matched the computed one.
func (r SingleReading) CRCValid() bool { return r.CRC == r.WireCRC }

// ExposureTime is the reply to GetExposureTime.
type ExposureTime uint16

func (ExposureTime) Kind() Kind { return KindExposureTime }

// AverageTime is the reply to GetAverageTime.
type AverageTime uint8

func (AverageTime) Kind() Kind { return KindAverageTime }

// SerialBaudRate is the reply to GetSerialBaudRate.
type SerialBaudRate BaudRate

func (SerialBaudRate) Kind() Kind { return KindSerialBaudRate }

// VersionInfo is the reply to GetVersion.
type VersionInfo VersionDetails

func (VersionInfo) Kind() Kind { return KindVersionInfo }
