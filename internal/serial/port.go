package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts a serial device for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens a blocking stdio-style port via tarm/serial and wraps it in a
// Conn ready to back a session. readTimeout bounds each Read; expiry shows
// up to the session as an idle (0, nil) read.
func Open(name string, baud int, readTimeout time.Duration) (*Conn, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return &Conn{port: p}, nil
}
