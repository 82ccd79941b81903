// Package frame provides the frame type and the bounded buffers used to hand
// frames between pipeline stages.
package frame

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured or derived image together with its capture metadata.
// A Frame is owned by exactly one holder at a time. Whoever drops it closes it.
type Frame struct {
	Mat      gocv.Mat
	Seq      uint64
	Captured time.Time
}

// New wraps mat in a Frame. The frame takes ownership of mat.
func New(mat gocv.Mat, seq uint64) *Frame {
	return &Frame{
		Mat:      mat,
		Seq:      seq,
		Captured: time.Now(),
	}
}

// Derive returns a new Frame holding mat and carrying f's metadata.
func (f *Frame) Derive(mat gocv.Mat) *Frame {
	return &Frame{
		Mat:      mat,
		Seq:      f.Seq,
		Captured: f.Captured,
	}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.Mat.Rows()
}

// Close releases the underlying matrix. Closing a nil frame is a no-op.
func (f *Frame) Close() {
	if f == nil {
		return
	}
	f.Mat.Close()
}
