package app

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/decode"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/testdata"
)

func newTestApp(t *testing.T, cam capture.Camera, sink *display.MockSink, p *config.Pipeline) *App {
	t.Helper()

	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger
	cfg.Camera = cam
	cfg.Pipeline = p
	cfg.GetTimeout = 10 * time.Millisecond
	cfg.NewSink = func() (display.Sink, error) { return sink, nil }

	a := New(cfg)
	t.Cleanup(a.Close)
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_MotionOnlyEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(3, 100, 100, 128)
	defer testdata.CloseAll(frames)

	p := config.NewPipeline()
	require.NoError(t, p.SetEnabled(config.Motion, true))

	sink := display.NewMockSink(3)
	a := newTestApp(t, capture.NewMockCamera(frames, false), sink, p)

	require.NoError(t, a.Start())
	a.Wait()

	shown := sink.Shown()
	require.Len(t, shown, 3)
	assert.Equal(t, display.Shown{Window: display.DefaultWindowName, Width: 100, Height: 100, Channels: 3}, shown[0])
	for _, s := range shown[1:] {
		assert.Equal(t, 100, s.Width)
		assert.Equal(t, 100, s.Height)
		assert.Equal(t, 1, s.Channels, "later frames are motion masks")
	}

	capStatus, _ := a.StageStatus(capture.StageName)
	procStatus, _ := a.StageStatus(ProcessingStageName)
	dispStatus, _ := a.StageStatus(display.StageName)
	assert.Equal(t, stage.Failed, capStatus, "end of stream fails capture")
	assert.Equal(t, stage.NotRunning, procStatus, "processing drains and exits cleanly")
	assert.Equal(t, stage.NotRunning, dispStatus)

	tel := a.Status().Telemetry
	assert.Equal(t, uint64(3), tel.Captured)
	assert.Equal(t, uint64(3), tel.Processed)
	assert.Equal(t, uint64(3), tel.Displayed)
}

func TestApp_StartFailsWhenDeviceUnavailable(t *testing.T) {
	cam := capture.NewMockCamera(nil, false)
	cam.SetOpenError(errors.New("no camera at index 0"))
	sink := display.NewMockSink(0)

	a := newTestApp(t, cam, sink, nil)

	err := a.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "no camera at index 0")

	procStatus, _ := a.StageStatus(ProcessingStageName)
	assert.Equal(t, stage.NotRunning, procStatus, "later stages are not started")
	assert.Empty(t, sink.Shown())
}

func TestApp_StartWithoutCamera(t *testing.T) {
	a := newTestApp(t, nil, display.NewMockSink(0), nil)
	assert.ErrorIs(t, a.Start(), capture.ErrDeviceUnavailable)
}

func TestApp_StopAndRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(2, 64, 48, 10)
	defer testdata.CloseAll(frames)

	cam := capture.NewMockCamera(frames, true)
	sink := display.NewMockSink(0)
	a := newTestApp(t, cam, sink, nil)

	require.NoError(t, a.Start())
	waitFor(t, "frames to be displayed", func() bool { return len(sink.Shown()) >= 5 })

	// a second Start while running launches nothing new
	require.NoError(t, a.Start())

	a.Stop()
	for _, s := range a.Status().Stages {
		assert.Equal(t, stage.NotRunning.String(), s.Status, s.Name)
	}
	assert.False(t, cam.IsOpen())
	assert.True(t, sink.Closed())

	require.NoError(t, a.Start())
	status, _ := a.StageStatus(capture.StageName)
	assert.Equal(t, stage.Running, status)
	a.Stop()
}

func TestApp_RelaunchDisplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(1, 64, 48, 10)
	defer testdata.CloseAll(frames)

	sinks := make(chan *display.MockSink, 2)
	first, second := display.NewMockSink(2), display.NewMockSink(0)
	sinks <- first
	sinks <- second

	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger
	cfg.Camera = capture.NewMockCamera(frames, true)
	cfg.GetTimeout = 10 * time.Millisecond
	cfg.NewSink = func() (display.Sink, error) { return <-sinks, nil }
	a := New(cfg)
	defer a.Close()

	require.NoError(t, a.Start())
	waitFor(t, "the first display to quit", func() bool {
		s, _ := a.StageStatus(display.StageName)
		return s == stage.NotRunning && first.Closed()
	})

	capStatus, _ := a.StageStatus(capture.StageName)
	assert.Equal(t, stage.Running, capStatus, "closing the display leaves capture running")

	started, err := a.RelaunchDisplay()
	require.NoError(t, err)
	assert.True(t, started)

	started, err = a.RelaunchDisplay()
	require.NoError(t, err)
	assert.False(t, started, "a running display is not launched twice")

	waitFor(t, "the new display to show frames", func() bool { return len(second.Shown()) > 0 })
}

func TestApp_ToggleAppliesToLaterFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(1, 64, 48, 10)
	defer testdata.CloseAll(frames)

	sink := display.NewMockSink(0)
	a := newTestApp(t, capture.NewMockCamera(frames, true), sink, nil)

	require.NoError(t, a.Start())
	waitFor(t, "colour frames", func() bool { return len(sink.Shown()) > 0 })
	assert.Equal(t, 3, sink.Shown()[0].Channels)

	_, err := a.Pipeline().Toggle(config.Gray)
	require.NoError(t, err)

	waitFor(t, "gray frames", func() bool {
		shown := sink.Shown()
		return shown[len(shown)-1].Channels == 1
	})
	a.Stop()
}

func TestApp_MatchEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	img := testdata.SquareFrame(200, 200, image.Rect(50, 50, 150, 150))
	defer img.Close()

	dec := decode.NewMockDecoder()
	dec.SetPayload("dock-7")

	p := config.NewPipeline()
	require.NoError(t, p.SetEnabled(config.Match, true))
	require.NoError(t, p.SetEnabled(config.Overlay, true))

	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger
	cfg.Camera = capture.NewMockCamera([]*gocv.Mat{&img}, true)
	cfg.Pipeline = p
	cfg.Decoder = dec
	cfg.GetTimeout = 10 * time.Millisecond
	cfg.NewSink = func() (display.Sink, error) { return display.NewMockSink(0), nil }
	a := New(cfg)
	defer a.Close()

	events, err := a.Events().Subscribe("test", 64)
	require.NoError(t, err)

	require.NoError(t, a.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var matched []bool
	for len(matched) < 2 {
		select {
		case e := <-events:
			if e.Kind == event.MatchChanged {
				matched = append(matched, e.Detail["matched"].(bool))
				if len(matched) == 1 {
					dec.SetPayload("")
				}
			}
		case <-ctx.Done():
			t.Fatalf("got match events %v, want a match then a miss", matched)
		}
	}
	assert.Equal(t, []bool{true, false}, matched)
	a.Stop()
}

func TestApp_WaitWithConcurrentRelaunch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	frames := testdata.Sequence(3, 64, 48, 10)
	defer testdata.CloseAll(frames)

	sink := display.NewMockSink(3)
	a := newTestApp(t, capture.NewMockCamera(frames, false), sink, config.NewPipeline())

	require.NoError(t, a.Start())
	a.Wait()

	for i := 0; i < 20; i++ {
		waited := make(chan struct{})
		go func() {
			a.Wait()
			close(waited)
		}()

		// The relaunched display blocks on an empty buffer until Stop.
		started, err := a.RelaunchDisplay()
		require.NoError(t, err)
		assert.True(t, started, "round %d", i)

		a.Stop()
		select {
		case <-waited:
		case <-time.After(3 * time.Second):
			t.Fatalf("round %d: Wait did not return after Stop", i)
		}

		s, _ := a.StageStatus(display.StageName)
		require.Equal(t, stage.NotRunning, s)
	}
}
