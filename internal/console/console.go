// Package console implements the interactive operator menu read from a
// terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/framepipe/internal/app"
	"github.com/ayusman/framepipe/internal/config"
)

// ErrExit is returned by Run when the operator chose exit.
var ErrExit = errors.New("exit requested")

// Controller is the part of the pipeline controller the menu drives.
type Controller interface {
	Start() error
	Stop()
	RelaunchDisplay() (bool, error)
	Status() app.Status
	Pipeline() *config.Pipeline
}

// menu lists the numbered entries in display order.
var menu = []string{
	"start",
	"toggle <filter>",
	"set roi x1,y1,x2,y2",
	"relaunch display",
	"status",
	"stop",
	"exit",
}

// Console reads commands line by line and applies them to a Controller.
type Console struct {
	ctrl Controller
	out  io.Writer
	log  logrus.FieldLogger
}

// New creates a Console writing its replies to out.
func New(ctrl Controller, out io.Writer, log logrus.FieldLogger) *Console {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Console{ctrl: ctrl, out: out, log: log}
}

// Run prints the menu and executes commands read from in until ctx is done,
// in reaches EOF or the operator types exit. Exit returns ErrExit; EOF and
// cancellation return nil.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printMenu()
	for {
		fmt.Fprint(c.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Execute(line); err != nil {
				if errors.Is(err, ErrExit) {
					fmt.Fprintln(c.out, "exiting...")
					return err
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *Console) printMenu() {
	fmt.Fprintln(c.out, "frame pipeline")
	for i, item := range menu {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, item)
	}
	fmt.Fprintf(c.out, "filters: %s\n", filterNames())
}

func filterNames() string {
	names := make([]string, len(config.Filters))
	for i, f := range config.Filters {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Execute runs one command line. A bare menu number selects the matching
// entry; entries that need an argument take it after the number.
func (c *Console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	if n, err := strconv.Atoi(fields[0]); err == nil {
		if n < 1 || n > len(menu) {
			return fmt.Errorf("no menu entry %d", n)
		}
		entry := strings.Fields(menu[n-1])
		// Keep the command words, drop placeholders like <filter>.
		cmd := entry[:1]
		if entry[0] == "set" || entry[0] == "relaunch" {
			cmd = entry[:2]
		}
		fields = append(cmd, fields[1:]...)
	}

	switch strings.ToLower(fields[0]) {
	case "start":
		if err := c.ctrl.Start(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "pipeline started")

	case "stop":
		c.ctrl.Stop()
		fmt.Fprintln(c.out, "pipeline stopped")

	case "toggle":
		if len(fields) != 2 {
			return fmt.Errorf("usage: toggle <filter> (one of %s)", filterNames())
		}
		f, err := config.ParseFilter(fields[1])
		if err != nil {
			return err
		}
		on, err := c.ctrl.Pipeline().Toggle(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s\n", f, onOff(on))

	case "set":
		if len(fields) < 3 || strings.ToLower(fields[1]) != "roi" {
			return errors.New("usage: set roi x1,y1,x2,y2")
		}
		roi, err := config.ParseROI(strings.Join(fields[2:], ""))
		if err != nil {
			return err
		}
		if err := c.ctrl.Pipeline().SetROI(roi); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "roi %s\n", c.ctrl.Pipeline().ROI())

	case "relaunch":
		started, err := c.ctrl.RelaunchDisplay()
		if err != nil {
			return err
		}
		if started {
			fmt.Fprintln(c.out, "display relaunched")
		} else {
			fmt.Fprintln(c.out, "display already running")
		}

	case "status":
		c.printStatus()

	case "exit", "quit":
		return ErrExit

	case "help", "menu":
		c.printMenu()

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}

	c.log.WithField("command", fields[0]).Debug("Console command executed")
	return nil
}

func (c *Console) printStatus() {
	s := c.ctrl.Status()
	for _, st := range s.Stages {
		if st.Error != "" {
			fmt.Fprintf(c.out, "%-10s %s (%s)\n", st.Name, st.Status, st.Error)
			continue
		}
		fmt.Fprintf(c.out, "%-10s %s\n", st.Name, st.Status)
	}

	enabled := s.Config.EnabledFilters()
	if len(enabled) == 0 {
		fmt.Fprintln(c.out, "filters    none")
	} else {
		fmt.Fprintf(c.out, "filters    %s\n", strings.Join(enabled, ", "))
	}
	fmt.Fprintf(c.out, "roi        %s\n", s.Config.ROI)

	t := s.Telemetry
	fmt.Fprintf(c.out, "frames     captured=%d processed=%d displayed=%d\n", t.Captured, t.Processed, t.Displayed)
	names := make([]string, 0, len(t.Buffers))
	for name := range t.Buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := t.Buffers[name]
		fmt.Fprintf(c.out, "buffer     %s %d/%d drops=%d\n", name, b.Len, b.Cap, b.Drops)
	}
	if t.Latency.Samples > 0 {
		fmt.Fprintf(c.out, "latency    mean=%.2fms p95=%.2fms max=%.2fms\n", t.Latency.MeanMs, t.Latency.P95Ms, t.Latency.MaxMs)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
