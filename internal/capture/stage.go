package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/frame"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/internal/telemetry"
)

// StageName is the name the capture stage reports under.
const StageName = "capture"

// dropReportInterval limits how often a drop summary event is published.
const dropReportInterval = time.Second

// StageConfig wires the capture stage to its collaborators.
type StageConfig struct {
	Camera Camera
	Output *frame.Buffer
	State  *stage.State
	Logger logrus.FieldLogger
	Events *event.Bus
	Stats  *telemetry.Stats
}

// Stage reads frames from the camera and publishes them to the output buffer.
type Stage struct {
	cfg StageConfig
	log logrus.FieldLogger
	seq uint64
}

// NewStage creates a capture stage. Sequence numbers continue across runs.
func NewStage(cfg StageConfig) *Stage {
	if cfg.State == nil {
		cfg.State = stage.NewState(StageName)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
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

// Run opens the camera and captures until ctx is cancelled or the device
// stops delivering frames. The caller must have called State().Launch.
//
// A failed open or read leaves the stage Failed: the open error wraps
// ErrDeviceUnavailable, the read error wraps ErrEndOfStream. Cancellation
// leaves it NotRunning. The camera is closed on every exit path.
func (s *Stage) Run(ctx context.Context) {
	st := s.cfg.State

	if err := s.cfg.Camera.Open(); err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		s.log.WithError(err).Warn("Failed to open capture device")
		st.MarkStopped(err)
		s.cfg.Events.Emit(event.StageFailed, StageName, map[string]any{"error": err.Error()})
		return
	}

	st.MarkRunning()
	s.log.Info("Capture stage running")
	s.cfg.Events.Emit(event.StageStarted, StageName, nil)

	err := s.loop(ctx)

	if cerr := s.cfg.Camera.Close(); cerr != nil {
		s.log.WithError(cerr).Warn("Error closing capture device")
	}

	st.MarkStopped(err)
	if err != nil {
		s.log.WithError(err).Warn("Capture stage failed")
		s.cfg.Events.Emit(event.StageFailed, StageName, map[string]any{"error": err.Error()})
		return
	}
	s.log.Info("Capture stage stopped")
	s.cfg.Events.Emit(event.StageStopped, StageName, nil)
}

func (s *Stage) loop(ctx context.Context) error {
	var (
		dropped    uint64
		lastReport time.Time
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		mat, err := s.cfg.Camera.ReadFrame()
		if err != nil {
			if !errors.Is(err, ErrEndOfStream) {
				err = fmt.Errorf("%w: %w", ErrEndOfStream, err)
			}
			return err
		}

		s.seq++
		f := frame.New(*mat, s.seq)
		s.cfg.Stats.FrameCaptured()

		err = s.cfg.Output.Put(ctx, f)
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrFull):
			f.Close()
			dropped++
			s.log.WithFields(logrus.Fields{"seq": f.Seq, "buffer": s.cfg.Output.Name()}).Debug("Dropped frame, buffer full")
			if time.Since(lastReport) >= dropReportInterval {
				s.cfg.Events.Emit(event.FramesDropped, StageName, map[string]any{
					"buffer":  s.cfg.Output.Name(),
					"dropped": dropped,
				})
				lastReport = time.Now()
				dropped = 0
			}
		default:
			// cancelled while waiting for room
			f.Close()
			return nil
		}
	}
}
