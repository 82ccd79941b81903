// Package app wires the capture, processing and display stages into one
// controllable pipeline.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/decode"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/filter"
	"github.com/ayusman/framepipe/internal/frame"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/internal/telemetry"
)

// Buffer names used in logs and telemetry.
const (
	RawBufferName       = "raw"
	ProcessedBufferName = "processed"
)

// Config holds configuration options for the application.
type Config struct {
	Logger   logrus.FieldLogger
	Camera   capture.Camera
	Pipeline *config.Pipeline
	// Decoder backs the code matching variant. It may be nil.
	Decoder decode.Decoder
	// NewSink creates the display sink. Nil means an OpenCV window.
	NewSink    display.SinkFactory
	WindowName string

	BufferSize    int
	CapturePolicy frame.Policy
	OutputPolicy  frame.Policy
	PutTimeout    time.Duration
	GetTimeout    time.Duration

	Events *event.Bus
	Stats  *telemetry.Stats
}

// DefaultConfig returns the buffer settings used when nothing is configured:
// capture blocks then drops, processing output drops the oldest frame.
func DefaultConfig() Config {
	return Config{
		BufferSize:    frame.DefaultCapacity,
		CapturePolicy: frame.BlockThenDrop,
		OutputPolicy:  frame.DropOldest,
		PutTimeout:    frame.DefaultPutTimeout,
		GetTimeout:    DefaultGetTimeout,
	}
}

// StageStatus is the externally visible state of one stage.
type StageStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	Stages    []StageStatus      `json:"stages"`
	Config    config.Snapshot    `json:"config"`
	Telemetry telemetry.Snapshot `json:"telemetry"`
}

// App is the pipeline controller. It owns the two frame buffers and the three
// stages, and starts, relaunches and stops them.
type App struct {
	config Config
	log    logrus.FieldLogger

	raw       *frame.Buffer
	processed *frame.Buffer

	capture    *capture.Stage
	processor  *Processor
	display    *display.Stage
	chainClose func()

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new App instance with the given configuration. Missing
// collaborators get defaults: a fresh pipeline config, event bus and stats.
func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = config.NewPipeline()
	}
	if cfg.Events == nil {
		cfg.Events = event.NewBus()
	}
	if cfg.Stats == nil {
		cfg.Stats = telemetry.New(0)
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = DefaultGetTimeout
	}

	a := &App{
		config:    cfg,
		log:       cfg.Logger,
		raw:       frame.NewBuffer(RawBufferName, cfg.BufferSize, cfg.CapturePolicy, cfg.PutTimeout),
		processed: frame.NewBuffer(ProcessedBufferName, cfg.BufferSize, cfg.OutputPolicy, cfg.PutTimeout),
	}
	cfg.Stats.Track(a.raw)
	cfg.Stats.Track(a.processed)

	a.capture = capture.NewStage(capture.StageConfig{
		Camera: cfg.Camera,
		Output: a.raw,
		State:  stage.NewState(capture.StageName),
		Logger: cfg.Logger,
		Events: cfg.Events,
		Stats:  cfg.Stats,
	})

	chain := filter.NewChain(cfg.Decoder)
	a.chainClose = chain.Close
	a.processor = &Processor{
		in:         a.raw,
		out:        a.processed,
		pipeline:   cfg.Pipeline,
		chain:      chain,
		upstream:   a.capture.State(),
		state:      stage.NewState(ProcessingStageName),
		getTimeout: cfg.GetTimeout,
		log:        cfg.Logger.WithField("stage", ProcessingStageName),
		events:     cfg.Events,
		stats:      cfg.Stats,
	}

	a.display = display.NewStage(display.StageConfig{
		Input:      a.processed,
		NewSink:    cfg.NewSink,
		WindowName: cfg.WindowName,
		State:      stage.NewState(display.StageName),
		Logger:     cfg.Logger,
		Events:     cfg.Events,
		Stats:      cfg.Stats,
	})

	return a
}

// runContext returns the shared stage context, creating a new one after Stop.
// Callers hold a.mu.
func (a *App) runContext() context.Context {
	if a.ctx == nil || a.ctx.Err() != nil {
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	return a.ctx
}

// launch starts run on its own goroutine if st is not already active and
// waits for its readiness signal. It returns the error the stage stopped with
// if it died before reaching Running. Callers hold a.mu.
func (a *App) launch(st *stage.State, run func(context.Context)) (bool, error) {
	if !st.Launch() {
		return false, nil
	}

	ctx := a.runContext()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		run(ctx)
	}()

	<-st.Ready()
	if !st.Started() {
		return true, st.Err()
	}
	return true, nil
}

// Start launches every stage that is not already running, in the order
// capture, processing, display, waiting for each to become ready before the
// next. A device that cannot be opened aborts the start with an error
// wrapping capture.ErrDeviceUnavailable.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.Camera == nil {
		return fmt.Errorf("start capture: %w: no camera configured", capture.ErrDeviceUnavailable)
	}

	if _, err := a.launch(a.capture.State(), a.capture.Run); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	if _, err := a.launch(a.processor.state, a.processor.runProcessing); err != nil {
		return fmt.Errorf("start processing: %w", err)
	}
	if _, err := a.launch(a.display.State(), a.display.Run); err != nil {
		return fmt.Errorf("start display: %w", err)
	}

	a.log.Info("Pipeline started")
	return nil
}

// RelaunchDisplay starts a fresh display stage unless one is already running.
// It reports whether a new display was started.
func (a *App) RelaunchDisplay() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	started, err := a.launch(a.display.State(), a.display.Run)
	if err != nil {
		return started, fmt.Errorf("relaunch display: %w", err)
	}
	if started {
		a.log.Info("Display relaunched")
	}
	return started, nil
}

// Stop cancels every stage, waits for them to exit and releases the frames
// still buffered between them.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	dropped := a.raw.Drain() + a.processed.Drain()
	a.log.WithField("discarded", dropped).Info("Pipeline stopped")
}

// Close stops the pipeline and releases the filter state.
func (a *App) Close() {
	a.Stop()
	a.chainClose()
}

// Wait blocks until every stage active at the time of the call has exited.
// Stages launched afterwards are not waited for.
func (a *App) Wait() {
	a.mu.Lock()
	var done []<-chan struct{}
	for _, st := range a.states() {
		if st.Active() {
			done = append(done, st.Done())
		}
	}
	a.mu.Unlock()

	for _, ch := range done {
		<-ch
	}
}

func (a *App) states() []*stage.State {
	return []*stage.State{a.capture.State(), a.processor.state, a.display.State()}
}

// Status returns the state of every stage, the current config and telemetry.
func (a *App) Status() Status {
	states := a.states()

	s := Status{
		Stages:    make([]StageStatus, 0, len(states)),
		Config:    a.config.Pipeline.Snapshot(),
		Telemetry: a.config.Stats.Snapshot(),
	}
	for _, st := range states {
		ss := StageStatus{Name: st.Name(), Status: st.Status().String()}
		if err := st.Err(); err != nil {
			ss.Error = err.Error()
		}
		s.Stages = append(s.Stages, ss)
	}
	return s
}

// StageStatus returns the status of the named stage.
func (a *App) StageStatus(name string) (stage.Status, bool) {
	for _, st := range a.states() {
		if st.Name() == name {
			return st.Status(), true
		}
	}
	return stage.NotRunning, false
}

// Pipeline returns the shared filter configuration.
func (a *App) Pipeline() *config.Pipeline {
	return a.config.Pipeline
}

// Events returns the event bus the stages publish on.
func (a *App) Events() *event.Bus {
	return a.config.Events
}
