// Package tray provides a system tray menu for starting, stopping and
// configuring the frame pipeline.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/config"
)

// Controller is the part of the pipeline controller the tray drives.
type Controller interface {
	Start() error
	Stop()
	RelaunchDisplay() (bool, error)
	Pipeline() *config.Pipeline
}

// Tray represents the system tray application.
type Tray struct {
	ctrl    Controller
	log     logrus.FieldLogger
	onQuit  func()
	running bool
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuRun     *systray.MenuItem
	menuStatus  *systray.MenuItem
	menuFilters map[config.Filter]*systray.MenuItem
}

// New creates a new Tray driving ctrl.
func New(ctrl Controller, log logrus.FieldLogger) *Tray {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tray{
		ctrl:        ctrl,
		log:         log,
		menuFilters: make(map[config.Filter]*systray.MenuItem),
	}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray menu and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("framepipe")
	systray.SetTooltip("Live frame pipeline")

	t.menuRun = systray.AddMenuItem("▶ Start", "Start or stop the pipeline")
	t.menuStatus = systray.AddMenuItem("Stopped", "Pipeline state")
	t.menuStatus.Disable()
	systray.AddSeparator()

	snap := t.ctrl.Pipeline().Snapshot()
	clicks := make(chan config.Filter)
	for _, f := range config.Filters {
		item := systray.AddMenuItemCheckbox(string(f), "Toggle the "+string(f)+" filter", snap.Enabled(f))
		t.menuFilters[f] = item
		go func(f config.Filter, item *systray.MenuItem) {
			for range item.ClickedCh {
				clicks <- f
			}
		}(f, item)
	}
	systray.AddSeparator()

	menuRelaunch := systray.AddMenuItem("Relaunch display", "Open a new display window if none is open")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit framepipe")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuRun.ClickedCh:
				t.handleRun()
			case f := <-clicks:
				t.handleToggle(f)
			case <-menuRelaunch.ClickedCh:
				t.handleRelaunch()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()

	if running {
		t.ctrl.Stop()
	}
}

// handleRun starts the pipeline when it is stopped and stops it otherwise.
func (t *Tray) handleRun() {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()

	// Call the controller outside the lock; Start blocks until stages are ready.
	if running {
		t.ctrl.Stop()
		t.setRunning(false, "Stopped")
		return
	}

	if err := t.ctrl.Start(); err != nil {
		t.log.WithError(err).Warn("Start from tray failed")
		t.setRunning(false, "Start failed")
		return
	}
	t.setRunning(true, "Running")
}

func (t *Tray) setRunning(running bool, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = running
	if t.menuRun != nil {
		if running {
			t.menuRun.SetTitle("■ Stop")
		} else {
			t.menuRun.SetTitle("▶ Start")
		}
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
}

// handleToggle flips filter f and updates its checkbox.
func (t *Tray) handleToggle(f config.Filter) {
	on, err := t.ctrl.Pipeline().Toggle(f)
	if err != nil {
		t.log.WithError(err).WithField("filter", f).Warn("Toggle from tray failed")
		return
	}

	t.mu.RLock()
	item := t.menuFilters[f]
	t.mu.RUnlock()

	if item != nil {
		if on {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// handleRelaunch opens a new display window if the previous one was closed.
func (t *Tray) handleRelaunch() {
	started, err := t.ctrl.RelaunchDisplay()
	if err != nil {
		t.log.WithError(err).Warn("Relaunch from tray failed")
		return
	}
	t.log.WithField("started", started).Info("Display relaunch requested from tray")
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// IsRunning reports whether the tray last started the pipeline.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
