package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/capture"
	"github.com/ayusman/framepipe/internal/config"
	"github.com/ayusman/framepipe/internal/console"
	"github.com/ayusman/framepipe/internal/decode"
	"github.com/ayusman/framepipe/internal/display"
	"github.com/ayusman/framepipe/internal/event"
	"github.com/ayusman/framepipe/internal/frame"
	"github.com/ayusman/framepipe/internal/hook"
	"github.com/ayusman/framepipe/internal/server"
	"github.com/ayusman/framepipe/internal/store"
	"github.com/ayusman/framepipe/internal/telemetry"
	"github.com/ayusman/framepipe/internal/tray"
)

const (
	AppName    = "framepipe"
	AppVersion = "0.1.0"
)

// subscriberBuffer is the queue length of each event bus subscriber.
const subscriberBuffer = 64

type options struct {
	device     int
	width      int
	height     int
	fps        int
	backend    string
	configPath string
	preset     string
	dbPath     string
	addr       string
	hookDir    string
	hookTime   time.Duration
	decoder    string
	lang       string
	window     string
	retention  time.Duration
	debug      bool
	useTray    bool
	useConsole bool
}

func parseFlags() options {
	def := capture.DefaultConfig()
	dataDir := dataDir()

	var o options
	flag.IntVar(&o.device, "device", def.DeviceID, "Camera device index")
	flag.IntVar(&o.width, "width", def.Width, "Requested frame width")
	flag.IntVar(&o.height, "height", def.Height, "Requested frame height")
	flag.IntVar(&o.fps, "fps", def.FPS, "Requested frame rate")
	flag.StringVar(&o.backend, "backend", string(def.Backend), "Capture backend: any, dshow, msmf, v4l2, avfoundation, gstreamer")
	flag.StringVar(&o.configPath, "config", "", "Pipeline configuration file (.json)")
	flag.StringVar(&o.preset, "preset", "", "Load a saved preset at startup")
	flag.StringVar(&o.dbPath, "db", filepath.Join(dataDir, "framepipe.db"), "SQLite database path")
	flag.StringVar(&o.addr, "addr", ":8080", "HTTP listen address, empty to disable")
	flag.StringVar(&o.hookDir, "hooks", filepath.Join(dataDir, "hooks"), "Hook directory")
	flag.DurationVar(&o.hookTime, "hook-timeout", hook.DefaultTimeout, "Maximum run time of one hook")
	flag.StringVar(&o.decoder, "decoder", string(decode.KindQR), "Code decoder: qr, text, none")
	flag.StringVar(&o.lang, "lang", decode.DefaultLanguage, "OCR language for the text decoder")
	flag.StringVar(&o.window, "window", display.DefaultWindowName, "Display window title")
	flag.DurationVar(&o.retention, "retention", 7*24*time.Hour, "Discard recorded events older than this at startup")
	flag.BoolVar(&o.debug, "debug", false, "Enable debug mode with verbose logging")
	flag.BoolVar(&o.useTray, "tray", false, "Control the pipeline from the system tray")
	flag.BoolVar(&o.useConsole, "console", false, "Control the pipeline from an interactive text menu")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	logger := initLogger(opts.debug)
	if opts.useConsole {
		// Keep stdout for the menu.
		logger.SetOutput(os.Stderr)
	}
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": opts.debug,
	}).Info("Starting " + AppName)

	if err := run(opts, logger); err != nil {
		logger.WithError(err).Fatal("Exiting")
	}
	logger.Info("Application shutting down gracefully")
}

func run(opts options, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the store
	if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(opts.dbPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	if n, err := st.Events().Prune(time.Now().Add(-opts.retention)); err != nil {
		logger.WithError(err).Warn("Failed to prune event log")
	} else if n > 0 {
		logger.WithField("removed", n).Info("Pruned event log")
	}

	pipeline := config.NewPipeline()
	appCfg := app.DefaultConfig()
	if err := loadConfigFile(opts.configPath, pipeline, &appCfg); err != nil {
		return err
	}
	if err := loadPreset(st, opts.preset, pipeline, logger); err != nil {
		return err
	}

	backend, err := capture.ParseBackend(opts.backend)
	if err != nil {
		return err
	}
	camera := capture.NewCamera(capture.Config{
		DeviceID: opts.device,
		Width:    opts.width,
		Height:   opts.height,
		FPS:      opts.fps,
		Backend:  backend,
	})

	decoder, err := decode.New(decode.Kind(opts.decoder), opts.lang)
	if err != nil {
		return fmt.Errorf("initialize decoder: %w", err)
	}
	if decoder != nil {
		defer decoder.Close()
	}

	bus := event.NewBus()
	defer bus.Close()

	if err := startSubscribers(ctx, bus, st, opts, logger); err != nil {
		return err
	}
	hub := server.NewHub(logger)
	wsEvents, err := bus.Subscribe("websocket", subscriberBuffer)
	if err != nil {
		return err
	}
	go hub.Run(ctx, wsEvents)

	appCfg.Logger = logger
	appCfg.Camera = camera
	appCfg.Pipeline = pipeline
	appCfg.Decoder = decoder
	appCfg.NewSink = display.WindowFactory(opts.window)
	appCfg.WindowName = opts.window
	appCfg.Events = bus
	appCfg.Stats = telemetry.New(telemetry.DefaultWindow)

	application := app.New(appCfg)
	defer application.Close()

	if opts.addr != "" {
		srv := &http.Server{
			Addr: opts.addr,
			Handler: server.New(server.Config{
				StaticDir:  findWebDir(),
				Controller: application,
				Store:      st,
				Events:     bus,
				Hub:        hub,
				Logger:     logger,
			}),
		}
		go func() {
			logger.WithField("addr", opts.addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("HTTP server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	switch {
	case opts.useTray:
		t := tray.New(application, logger)
		t.OnQuit(stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()

	case opts.useConsole:
		err := console.New(application, os.Stdout, logger).Run(ctx, os.Stdin)
		if err != nil && !errors.Is(err, console.ErrExit) {
			return err
		}

	default:
		if err := application.Start(); err != nil {
			return err
		}
		stages := make(chan struct{})
		go func() {
			application.Wait()
			close(stages)
		}()
		select {
		case <-ctx.Done():
		case <-stages:
			logger.Info("All stages exited")
		}
	}

	return nil
}

// loadConfigFile applies a pipeline configuration file, if one was given, to
// the live pipeline and the buffer settings.
func loadConfigFile(path string, pipeline *config.Pipeline, cfg *app.Config) error {
	if path == "" {
		return nil
	}

	f, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := f.Apply(pipeline); err != nil {
		return fmt.Errorf("apply config file: %w", err)
	}

	if f.BufferSize != nil {
		cfg.BufferSize = *f.BufferSize
	}
	if f.CapturePolicy != nil {
		if cfg.CapturePolicy, err = frame.ParsePolicy(*f.CapturePolicy); err != nil {
			return fmt.Errorf("capture_policy: %w", err)
		}
	}
	if f.OutputPolicy != nil {
		if cfg.OutputPolicy, err = frame.ParsePolicy(*f.OutputPolicy); err != nil {
			return fmt.Errorf("output_policy: %w", err)
		}
	}
	cfg.PutTimeout = config.Duration(f.PutTimeout, cfg.PutTimeout)
	cfg.GetTimeout = config.Duration(f.GetTimeout, cfg.GetTimeout)
	return nil
}

// loadPreset restores the named preset, or the last applied one when name is
// empty.
func loadPreset(st *store.Store, name string, pipeline *config.Pipeline, logger logrus.FieldLogger) error {
	explicit := name != ""
	if !explicit {
		active, err := st.Settings().Get(store.SettingActivePreset)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read active preset: %w", err)
		}
		name = active
	}

	p, err := st.Presets().Get(name)
	if err != nil {
		if !explicit && errors.Is(err, store.ErrNotFound) {
			logger.WithField("preset", name).Warn("Active preset no longer exists")
			return nil
		}
		return fmt.Errorf("load preset %q: %w", name, err)
	}
	if err := pipeline.Restore(p.Config); err != nil {
		logger.WithError(err).WithField("preset", name).Warn("Preset partially applied")
	}
	if explicit {
		if err := st.Settings().Set(store.SettingActivePreset, name); err != nil {
			return fmt.Errorf("record active preset: %w", err)
		}
	}
	logger.WithField("preset", name).Info("Preset loaded")
	return nil
}

// startSubscribers attaches the event log recorder and the hook dispatcher to bus.
func startSubscribers(ctx context.Context, bus *event.Bus, st *store.Store, opts options, logger *logrus.Logger) error {
	recorded, err := bus.Subscribe("store", subscriberBuffer)
	if err != nil {
		return err
	}
	go st.Events().Consume(ctx, recorded, logger)

	manager := hook.NewManager(opts.hookDir)
	if err := manager.Discover(); err != nil {
		return fmt.Errorf("discover hooks: %w", err)
	}
	hooks := manager.List()
	if len(hooks) == 0 {
		return nil
	}
	for _, h := range hooks {
		logger.WithFields(logrus.Fields{"hook": h.Manifest.Name, "events": h.Manifest.Events}).Info("Hook loaded")
	}

	dispatched, err := bus.Subscribe("hooks", subscriberBuffer)
	if err != nil {
		return err
	}
	dispatcher := hook.NewDispatcher(manager, hook.NewExecutor(opts.hookTime), logger)
	go dispatcher.Run(ctx, dispatched)
	return nil
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

// dataDir returns ~/.framepipe, or the working directory when there is no home.
func dataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".framepipe")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.framepipe/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(dataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
