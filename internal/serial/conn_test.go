package serial

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type fakePort struct {
	rx       []byte
	rxErr    error
	wr       []byte
	maxWrite int
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.rx) == 0 {
		return 0, p.rxErr
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	n := len(b)
	if p.maxWrite > 0 && n > p.maxWrite {
		n = p.maxWrite
	}
	p.wr = append(p.wr, b[:n]...)
	return n, nil
}

func (p *fakePort) Close() error { p.closed = true; return nil }

// WriteAll must keep writing when the port accepts short chunks.
func TestConnWriteAllShortWrites(t *testing.T) {
	p := &fakePort{maxWrite: 2}
	c := NewConn(p)
	msg := []byte{0x81, 0x01, 0x00, 0x00, 0xFF}
	if err := c.WriteAll(msg); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if !bytes.Equal(p.wr, msg) {
		t.Fatalf("port got % X, want % X", p.wr, msg)
	}
}

// A read timeout reported as io.EOF maps to the idle (0, nil) result.
func TestConnReadTimeoutMapsToIdle(t *testing.T) {
	p := &fakePort{rxErr: io.EOF}
	c := NewConn(p)
	n, err := c.Read(make([]byte, 8))
	if n != 0 || err != nil {
		t.Fatalf("got (%d, %v), want (0, nil)", n, err)
	}
}

func TestConnReadPassesErrors(t *testing.T) {
	wantErr := errors.New("device gone")
	p := &fakePort{rxErr: wantErr}
	c := NewConn(p)
	if _, err := c.Read(make([]byte, 8)); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestConnClose(t *testing.T) {
	p := &fakePort{}
	c := NewConn(p)
	if err := c.Close(); err != nil || !p.closed {
		t.Fatalf("close: err=%v closed=%v", err, p.closed)
	}
}
