package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/decode"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/hook"
	"github.com/ayusman/framepipe/internal/server"
	"github.com/ayusman/framepipe/internal/stage"
	"github.com/ayusman/framepipe/internal/store"
	"github.com/ayusman/framepipe/testdata"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s decode error = %v", url, err)
	}
}

func post(t *testing.T, client *http.Client, url string) int {
	t.Helper()
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func stageStatus(s app.Status, name string) string {
	for _, st := range s.Stages {
		if st.Name == name {
			return st.Status
		}
	}
	return ""
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	logger, _ := test.NewNullLogger()

	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	// A hook that records every capture failure it is told about.
	failures := filepath.Join(tmpDir, "failures.log")
	hookDir := filepath.Join(tmpDir, "hooks", "on-failure")
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name": "on-failure", "version": "1.0.0", "executable": "run.sh", "events": ["stage.failed"]}`
	if err := os.WriteFile(filepath.Join(hookDir, hook.ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	script := fmt.Sprintf("#!/bin/sh\ncat >> %q\necho >> %q\necho '{\"success\": true}'\n", failures, failures)
	if err := os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorded, _ := bus.Subscribe("store", 64)
	go s.Events().Consume(ctx, recorded, logger)

	manager := hook.NewManager(filepath.Join(tmpDir, "hooks"))
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	dispatched, _ := bus.Subscribe("hooks", 64)
	go hook.NewDispatcher(manager, hook.NewExecutor(5*time.Second), logger).Run(ctx, dispatched)

	// Ten dark frames, then one with a bright square inside the default ROI.
	frames := testdata.Sequence(10, 640, 480, 0)
	square := testdata.SquareFrame(640, 480, config.DefaultROI.Rect().Inset(40))
	frames = append(frames, &square)
	defer testdata.CloseAll(frames)

	decoder := decode.NewMockDecoder()
	decoder.SetPayload("dock-7")
	sink := display.NewMockSink(0)

	cfg := app.DefaultConfig()
	cfg.Logger = logger
	cfg.Camera = capture.NewMockCamera(frames, false)
	cfg.Decoder = decoder
	cfg.NewSink = func() (display.Sink, error) { return sink, nil }
	cfg.GetTimeout = 10 * time.Millisecond
	cfg.Events = bus
	application := app.New(cfg)
	defer application.Close()

	srv := server.New(server.Config{Controller: application, Store: s, Events: bus, Logger: logger})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	t.Run("ConfigureFilters", func(t *testing.T) {
		for _, f := range []string{"match", "overlay"} {
			if code := post(t, client, ts.URL+"/api/config/toggle/"+f); code != http.StatusOK {
				t.Fatalf("toggle %s status = %d", f, code)
			}
		}

		var snap config.Snapshot
		getJSON(t, client, ts.URL+"/api/config", &snap)
		if !snap.Match || !snap.Overlay {
			t.Errorf("config = %+v, want match and overlay on", snap)
		}
	})

	t.Run("RunToEndOfStream", func(t *testing.T) {
		if code := post(t, client, ts.URL+"/api/pipeline/start"); code != http.StatusOK {
			t.Fatalf("start status = %d", code)
		}

		waitFor(t, "processing to drain", func() bool {
			st, _ := application.StageStatus(app.ProcessingStageName)
			return st == stage.NotRunning
		})
		waitFor(t, "every processed frame displayed or dropped", func() bool {
			drops := application.Status().Telemetry.Buffers[app.ProcessedBufferName].Drops
			return len(sink.Shown())+int(drops) == len(frames)
		})

		var status app.Status
		getJSON(t, client, ts.URL+"/api/status", &status)
		if got := stageStatus(status, capture.StageName); got != "failed" {
			t.Errorf("capture status = %q, want failed", got)
		}
		if got := stageStatus(status, display.StageName); got != "running" {
			t.Errorf("display status = %q, want running", got)
		}
		if status.Telemetry.Captured != uint64(len(frames)) {
			t.Errorf("captured = %d, want %d", status.Telemetry.Captured, len(frames))
		}
	})

	t.Run("EventLog", func(t *testing.T) {
		var listed struct {
			Events []event.Event `json:"events"`
		}
		waitFor(t, "match and failure events recorded", func() bool {
			getJSON(t, client, ts.URL+"/api/events?limit=50", &listed)
			kinds := map[event.Kind]bool{}
			for _, e := range listed.Events {
				kinds[e.Kind] = true
			}
			return kinds[event.MatchChanged] && kinds[event.StageFailed] && kinds[event.ConfigChanged]
		})

		getJSON(t, client, ts.URL+"/api/events?kind=match.changed", &listed)
		if len(listed.Events) != 1 {
			t.Fatalf("match events = %d, want 1", len(listed.Events))
		}
		if listed.Events[0].Detail["payload"] != "dock-7" {
			t.Errorf("match payload = %v, want dock-7", listed.Events[0].Detail["payload"])
		}
	})

	t.Run("HookRan", func(t *testing.T) {
		waitFor(t, "failure hook output", func() bool {
			data, err := os.ReadFile(failures)
			return err == nil && strings.Contains(string(data), `"stage.failed"`)
		})
	})

	t.Run("Stop", func(t *testing.T) {
		if code := post(t, client, ts.URL+"/api/pipeline/stop"); code != http.StatusOK {
			t.Fatalf("stop status = %d", code)
		}

		var status app.Status
		getJSON(t, client, ts.URL+"/api/status", &status)
		if got := stageStatus(status, display.StageName); got != stage.NotRunning.String() {
			t.Errorf("display status after stop = %q, want not running", got)
		}
	})
}

func TestE2E_PresetSurvivesRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "data.db")
	logger, _ := test.NewNullLogger()
	want := config.ROI{X1: 20, Y1: 30, X2: 220, Y2: 230}

	// First run: configure and save.
	{
		s, err := store.New(dbPath)
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}

		application := app.New(app.Config{Logger: logger})
		ts := httptest.NewServer(server.New(server.Config{Controller: application, Store: s, Logger: logger}))

		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config/roi",
			strings.NewReader(fmt.Sprintf(`{"x1": %d, "y1": %d, "x2": %d, "y2": %d}`, want.X1, want.Y1, want.X2, want.Y2)))
		resp, err := ts.Client().Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("PUT roi = %v, %v", resp, err)
		}
		resp.Body.Close()
		post(t, ts.Client(), ts.URL+"/api/config/toggle/motion")

		req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/presets/warehouse", nil)
		resp, err = ts.Client().Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("PUT preset = %v, %v", resp, err)
		}
		resp.Body.Close()

		ts.Close()
		application.Close()
		s.Close()
	}

	// Second run: a fresh pipeline picks the preset up from the database.
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	p, err := s.Presets().Get("warehouse")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	pipeline := config.NewPipeline()
	if err := pipeline.Restore(p.Config); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if pipeline.ROI() != want {
		t.Errorf("ROI = %+v, want %+v", pipeline.ROI(), want)
	}
	if !pipeline.Enabled(config.Motion) {
		t.Error("motion should be restored as enabled")
	}
}
