package serial

import (
	"time"

	bugst "go.bug.st/serial"
)

// OpenBugst opens a port through go.bug.st/serial. That backend exposes a
// per-port read timeout instead of a per-config one, which makes it the
// better fit for hosts where the byte stream is bursty: a timed-out Read
// returns zero bytes, which Conn reports as an idle stream.
func OpenBugst(name string, baud int, readTimeout time.Duration) (*Conn, error) {
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return &Conn{port: p}, nil
}
