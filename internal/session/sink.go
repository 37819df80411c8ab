package session

import "github.com/kstaniek/go-lcam-driver/internal/ccd"

// FrameSink receives frames from GetFrames in arrival order.
type FrameSink interface {
	Accept(ccd.Frame)
}

// FrameBuffer is the simplest sink: it appends every frame.
type FrameBuffer []ccd.Frame

func (b *FrameBuffer) Accept(f ccd.Frame) { *b = append(*b, f) }

// FrameFunc adapts a function to the FrameSink interface.
type FrameFunc func(ccd.Frame)

func (fn FrameFunc) Accept(f ccd.Frame) { fn(f) }
