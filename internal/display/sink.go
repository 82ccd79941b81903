// Package display renders processed frames and watches for the quit key.
package display

import (
	"runtime"

	"gocv.io/x/gocv"
)

// DefaultWindowName is the title of the render window.
const DefaultWindowName = "framepipe"

// QuitKey ends the display stage when pressed in the render window.
const QuitKey = 'q'

// Sink shows frames to the operator.
type Sink interface {
	// Show renders mat in the window called name.
	Show(name string, mat gocv.Mat) error
	// PollQuit reports whether the operator asked the display to close.
	PollQuit() bool
	Close() error
}

// SinkFactory creates a Sink. It is called on the display goroutine, so a
// sink that needs thread affinity can set it up there.
type SinkFactory func() (Sink, error)

// WindowSink is a Sink backed by an OpenCV HighGUI window. It must be created,
// used and closed on one locked OS thread.
type WindowSink struct {
	window *gocv.Window
	quit   bool
}

// NewWindowSink opens a window titled name. The calling goroutine is locked
// to its OS thread until Close.
func NewWindowSink(name string) *WindowSink {
	runtime.LockOSThread()
	return &WindowSink{window: gocv.NewWindow(name)}
}

// WindowFactory returns a SinkFactory producing WindowSinks titled name.
func WindowFactory(name string) SinkFactory {
	return func() (Sink, error) {
		return NewWindowSink(name), nil
	}
}

// Show draws mat and pumps the window's event loop once.
func (w *WindowSink) Show(name string, mat gocv.Mat) error {
	w.window.IMShow(mat)
	if key := w.window.WaitKey(1); key == QuitKey || key == QuitKey-'a'+'A' {
		w.quit = true
	}
	return nil
}

// PollQuit reports whether the quit key was seen by the last Show.
func (w *WindowSink) PollQuit() bool {
	return w.quit
}

// Close destroys the window and unlocks the OS thread.
func (w *WindowSink) Close() error {
	defer runtime.UnlockOSThread()
	return w.window.Close()
}
