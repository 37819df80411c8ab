package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-lcam-driver/internal/transport"
)

// Conn adapts a Port to the transport contract the session drives.
type Conn struct {
	port Port
}

// NewConn wraps an already-open port.
func NewConn(p Port) *Conn { return &Conn{port: p} }

var _ transport.Transport = (*Conn)(nil)

// WriteAll blocks until every byte was handed to the port.
func (c *Conn) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := c.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// Read reads up to len(p) bytes. Serial backends report a read timeout as
// io.EOF or as a zero-byte read depending on the platform; both are mapped
// to the idle (0, nil) result so the session treats them uniformly.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.port.Read(p)
	if err != nil {
		if n == 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			return 0, nil
		}
		return n, fmt.Errorf("serial read: %w", err)
	}
	return n, nil
}

// Close releases the underlying port.
func (c *Conn) Close() error { return c.port.Close() }
