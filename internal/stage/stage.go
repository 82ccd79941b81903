// Package stage tracks the lifecycle of the long-running pipeline workers.
package stage

import (
	"sync"
	"sync/atomic"
)

// Status is the lifecycle state of a stage.
type Status int32

const (
	// NotRunning means the stage has not started or has exited cleanly.
	NotRunning Status = iota
	// Running means the stage loop is active.
	Running
	// Failed means the stage stopped because of an error.
	Failed
)

// String returns a lowercase status name.
func (s Status) String() string {
	switch s {
	case NotRunning:
		return "not_running"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the shared lifecycle record of one stage. Only the goroutine running
// the stage writes the status. Any goroutine may read it.
//
// Each launch gets a fresh pair of one-shot channels: ready is closed when the
// stage enters Running, done when it stops.
type State struct {
	name   string
	status atomic.Int32

	mu        sync.Mutex
	launching bool
	started   bool
	ready     chan struct{}
	done      chan struct{}
	readyOnce *sync.Once
	err       error
}

// NewState creates a State in NotRunning.
func NewState(name string) *State {
	done := make(chan struct{})
	close(done)
	ready := make(chan struct{})
	close(ready)

	return &State{
		name:      name,
		ready:     ready,
		done:      done,
		readyOnce: &sync.Once{},
	}
}

// Name returns the stage name.
func (s *State) Name() string {
	return s.name
}

// Status returns the current status.
func (s *State) Status() Status {
	return Status(s.status.Load())
}

// Active reports whether the stage is running or has been launched and not yet stopped.
func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launching || s.Status() == Running
}

// Launch prepares the State for a new run. It returns false when the stage is
// already active, in which case the caller must not start another run.
func (s *State) Launch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.launching || s.Status() == Running {
		return false
	}

	s.launching = true
	s.started = false
	s.ready = make(chan struct{})
	s.done = make(chan struct{})
	s.readyOnce = &sync.Once{}
	s.err = nil
	return true
}

// MarkRunning moves the stage to Running and fires the readiness signal.
func (s *State) MarkRunning() {
	s.status.Store(int32(Running))

	s.mu.Lock()
	s.started = true
	once, ready := s.readyOnce, s.ready
	s.mu.Unlock()

	once.Do(func() { close(ready) })
}

// MarkStopped records the end of a run. A nil err leaves the stage NotRunning,
// anything else leaves it Failed. Readiness waiters are released as well so a
// stage that dies during startup does not strand its launcher.
func (s *State) MarkStopped(err error) {
	if err != nil {
		s.status.Store(int32(Failed))
	} else {
		s.status.Store(int32(NotRunning))
	}

	s.mu.Lock()
	s.err = err
	s.launching = false
	once, ready, done := s.readyOnce, s.ready, s.done
	s.mu.Unlock()

	once.Do(func() { close(ready) })
	select {
	case <-done:
	default:
		close(done)
	}
}

// Started reports whether the current or last run reached Running. After
// Ready fires, false means the run died during startup.
func (s *State) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ready returns a channel closed once the current run is Running or has stopped.
func (s *State) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Done returns a channel closed once the current run has stopped.
func (s *State) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error the last run stopped with.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
