package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// fakeDev is a byte device that blocks intermittently: every blockEvery-th
// call returns ErrWouldBlock first.
type fakeDev struct {
	rx         []byte
	tx         []byte
	calls      int
	blockEvery int
	wrErr      error
	alwaysBusy bool
}

func (d *fakeDev) blocked() bool {
	d.calls++
	return d.alwaysBusy || (d.blockEvery > 0 && d.calls%d.blockEvery == 0)
}

func (d *fakeDev) ReadByte() (byte, error) {
	if d.blocked() || len(d.rx) == 0 {
		return 0, ErrWouldBlock
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b, nil
}

func (d *fakeDev) WriteByte(b byte) error {
	if d.wrErr != nil {
		return d.wrErr
	}
	if d.blocked() {
		return ErrWouldBlock
	}
	d.tx = append(d.tx, b)
	return nil
}

func TestByteTransportWriteAll(t *testing.T) {
	dev := &fakeDev{blockEvery: 3}
	tr := NewByteTransport(dev, time.Second)
	msg := []byte{0x81, 0x06, 0x00, 0x00, 0xFF}
	if err := tr.WriteAll(msg); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if !bytes.Equal(dev.tx, msg) {
		t.Fatalf("device got % X, want % X", dev.tx, msg)
	}
}

func TestByteTransportWriteError(t *testing.T) {
	wantErr := errors.New("uart fault")
	dev := &fakeDev{wrErr: wantErr}
	tr := NewByteTransport(dev, time.Second)
	if err := tr.WriteAll([]byte{0x01}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
}

func TestByteTransportWriteTimeout(t *testing.T) {
	dev := &fakeDev{alwaysBusy: true}
	tr := NewByteTransport(dev, 2*time.Millisecond)
	if err := tr.WriteAll([]byte{0x01}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestByteTransportReadDrainsBurst(t *testing.T) {
	dev := &fakeDev{rx: []byte{0x81, 0x16, 0x01, 0x00, 0xFF}, blockEvery: 4}
	tr := NewByteTransport(dev, time.Second)
	buf := make([]byte, 16)
	var got []byte
	for len(got) < 5 {
		n, err := tr.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, []byte{0x81, 0x16, 0x01, 0x00, 0xFF}) {
		t.Fatalf("got % X", got)
	}
}

// An idle device reads as (0, nil) after the timeout, matching the
// transport contract for an idle stream.
func TestByteTransportReadTimeoutIsIdle(t *testing.T) {
	dev := &fakeDev{alwaysBusy: true}
	tr := NewByteTransport(dev, 2*time.Millisecond)
	n, err := tr.Read(make([]byte, 4))
	if n != 0 || err != nil {
		t.Fatalf("got (%d, %v), want (0, nil)", n, err)
	}
}
