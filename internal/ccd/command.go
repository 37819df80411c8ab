package ccd

// Command is a request the host can send to the sensor. Every command
// serializes to exactly PacketHeaderSize bytes: 0x81, opcode, two data
// bytes, 0xFF.
type Command interface {
	opcode() byte
	data() (d1, d2 byte)
}

type (
	// SingleRead requests one pixel frame.
	SingleRead struct{}
	// ContinuousRead starts an unbounded stream of pixel frames.
	ContinuousRead struct{}
	// PauseRead stops a running continuous read.
	PauseRead struct{}
	// SetIntegrationTime sets the integration time register.
	SetIntegrationTime uint16
	// SetTriggerMode selects the acquisition trigger.
	SetTriggerMode TriggerMode
	// GetVersion requests the ASCII version info response.
	GetVersion struct{}
	// GetExposureTime requests the current exposure time.
	GetExposureTime struct{}
	// SetAverageTime sets the averaging register.
	SetAverageTime uint8
	// GetAverageTime requests the current averaging register.
	GetAverageTime struct{}
	// SetSerialBaudRate reconfigures the UART pins. It does not affect the
	// USB CDC side; the host mirrors its own baud rate separately.
	SetSerialBaudRate BaudRate
	// GetSerialBaudRate requests the current UART baud rate.
	GetSerialBaudRate struct{}
)

func (SingleRead) opcode() byte         { return 0x01 }
func (ContinuousRead) opcode() byte     { return 0x02 }
func (SetIntegrationTime) opcode() byte { return 0x03 }
func (PauseRead) opcode() byte          { return 0x06 }
func (SetTriggerMode) opcode() byte     { return 0x07 }
func (GetVersion) opcode() byte         { return 0x09 }
func (GetExposureTime) opcode() byte    { return 0x0A }
func (SetAverageTime) opcode() byte     { return 0x0C }
func (GetAverageTime) opcode() byte     { return 0x0E }
func (SetSerialBaudRate) opcode() byte  { return 0x13 }
func (GetSerialBaudRate) opcode() byte  { return 0x16 }

func (SingleRead) data() (byte, byte)     { return 0x00, 0x00 }
func (ContinuousRead) data() (byte, byte) { return 0x00, 0x00 }
func (PauseRead) data() (byte, byte)      { return 0x00, 0x00 }
func (c SetIntegrationTime) data() (byte, byte) {
	return byte(uint16(c) >> 8), byte(uint16(c))
}
func (c SetTriggerMode) data() (byte, byte)    { return byte(c), 0x00 }
func (GetVersion) data() (byte, byte)          { return 0x00, 0x00 }
func (GetExposureTime) data() (byte, byte)     { return 0x00, 0x00 }
func (c SetAverageTime) data() (byte, byte)    { return byte(c), 0x00 }
func (GetAverageTime) data() (byte, byte)      { return 0x00, 0x00 }
func (c SetSerialBaudRate) data() (byte, byte) { return BaudRate(c).code(), 0x00 }
func (GetSerialBaudRate) data() (byte, byte)   { return 0x00, 0x00 }

// Encode serializes cmd into its fixed 5-byte wire form.
func Encode(cmd Command) [PacketHeaderSize]byte {
	d1, d2 := cmd.data()
	return [PacketHeaderSize]byte{packetHead, cmd.opcode(), d1, d2, 0xFF}
}
