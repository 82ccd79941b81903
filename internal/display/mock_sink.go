package display

import (
	"sync"

	"gocv.io/x/gocv"
)

// Shown describes one frame handed to a MockSink.
type Shown struct {
	Window   string
	Width    int
	Height   int
	Channels int
}

// MockSink records the frames it is shown. It can be told to report the quit
// key after a number of frames.
type MockSink struct {
	mu        sync.Mutex
	shown     []Shown
	quitAfter int
	closed    bool
}

func NewMockSink(quitAfter int) *MockSink {
	return &MockSink{quitAfter: quitAfter}
}

func (s *MockSink) Show(name string, mat gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, Shown{
		Window:   name,
		Width:    mat.Cols(),
		Height:   mat.Rows(),
		Channels: mat.Channels(),
	})
	return nil
}

func (s *MockSink) PollQuit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quitAfter > 0 && len(s.shown) >= s.quitAfter
}

func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Shown returns a copy of every recorded frame.
func (s *MockSink) Shown() []Shown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Shown(nil), s.shown...)
}

// Closed reports whether Close was called.
func (s *MockSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
