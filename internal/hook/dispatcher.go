package hook

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/event"
)

// Dispatcher runs the subscribed hooks for every event it receives. Hooks run
// one at a time in event order, so a slow hook delays later ones; the event
// bus drops what the dispatcher cannot keep up with.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	log      logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(manager *Manager, executor *Executor, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		log:      log.WithField("component", "hooks"),
	}
}

// Run dispatches events from ch until it closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			d.Dispatch(ctx, e)
		}
	}
}

// Dispatch runs every hook subscribed to e.Kind and returns how many succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.Event) int {
	ok := 0
	for _, h := range d.manager.For(e.Kind) {
		fields := logrus.Fields{"hook": h.Manifest.Name, "kind": e.Kind, "event": e.ID}

		resp, err := d.executor.Execute(ctx, h, &Request{Event: e, Config: h.Manifest.Config})
		if err != nil {
			d.log.WithFields(fields).WithError(err).Warn("Hook failed")
			continue
		}
		if !resp.Success {
			d.log.WithFields(fields).WithField("error", resp.Error).Warn("Hook reported failure")
			continue
		}
		d.log.WithFields(fields).Debug("Hook ran")
		ok++
	}
	return ok
}
