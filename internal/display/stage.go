package display

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/frame"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/internal/telemetry"
)

// StageName is the name the display stage reports under.
const StageName = "display"

// StageConfig wires the display stage to its collaborators.
type StageConfig struct {
	Input      *frame.Buffer
	NewSink    SinkFactory
	WindowName string
	State      *stage.State
	Logger     logrus.FieldLogger
	Events     *event.Bus
	Stats      *telemetry.Stats
}

// Stage pops processed frames and shows them until the quit key is pressed
// or its context is cancelled.
type Stage struct {
	cfg StageConfig
	log logrus.FieldLogger
}

// NewStage creates a display stage.
func NewStage(cfg StageConfig) *Stage {
	if cfg.State == nil {
		cfg.State = stage.NewState(StageName)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.WindowName == "" {
		cfg.WindowName = DefaultWindowName
	}
	if cfg.NewSink == nil {
		cfg.NewSink = WindowFactory(cfg.WindowName)
	}
	return &Stage{
		cfg: cfg,
		log: cfg.Logger.WithField("stage", StageName),
	}
}

// State returns the lifecycle record of the stage.
func (s *Stage) State() *stage.State {
	return s.cfg.State
}

// Run shows frames until quit or cancellation. The caller must have called
// State().Launch. Each run creates a fresh sink, so a closed window can be
// brought back by launching the stage again.
func (s *Stage) Run(ctx context.Context) {
	st := s.cfg.State

	sink, err := s.cfg.NewSink()
	if err != nil {
		err = fmt.Errorf("open display sink: %w", err)
		s.log.WithError(err).Warn("Display stage failed")
		st.MarkStopped(err)
		s.cfg.Events.Emit(event.StageFailed, StageName, map[string]any{"error": err.Error()})
		return
	}

	st.MarkRunning()
	s.log.Info("Display stage running")
	s.cfg.Events.Emit(event.StageStarted, StageName, nil)

	reason := s.loop(ctx, sink)

	if err := sink.Close(); err != nil {
		s.log.WithError(err).Warn("Error closing display sink")
	}

	st.MarkStopped(nil)
	s.log.WithField("reason", reason).Info("Display stage stopped")
	s.cfg.Events.Emit(event.StageStopped, StageName, map[string]any{"reason": reason})
}

func (s *Stage) loop(ctx context.Context, sink Sink) string {
	for {
		f, err := s.cfg.Input.Get(ctx, 0)
		if err != nil {
			return "cancelled"
		}

		if err := sink.Show(s.cfg.WindowName, f.Mat); err != nil {
			s.log.WithError(err).WithField("seq", f.Seq).Debug("Failed to show frame")
		} else {
			s.cfg.Stats.FrameDisplayed()
		}
		f.Close()

		if sink.PollQuit() {
			return "quit key"
		}
	}
}
