// Package config holds the live pipeline configuration shared between the
// processing stage and the operator surfaces.
package config

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnknownFilter is returned when a filter name is not recognised.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrInvalidROI is returned for a region that cannot describe a rectangle.
	ErrInvalidROI = errors.New("invalid region of interest")
	// ErrInvalidKernel is returned for a blur kernel that is not odd and positive.
	ErrInvalidKernel = errors.New("blur kernel must be odd and positive")
)

// Filter names a toggleable stage of the filter chain.
type Filter string

const (
	Flip             Filter = "flip"
	Gray             Filter = "gray"
	Blur             Filter = "blur"
	Motion           Filter = "motion"
	Dilate           Filter = "dilate"
	Background       Filter = "background"
	Overlay          Filter = "overlay"
	Match            Filter = "match"
	GrayTracksMotion Filter = "gray_tracks_motion"
)

// Filters lists every toggleable filter in chain order.
var Filters = []Filter{Flip, Blur, Gray, Motion, Dilate, Background, Overlay, Match, GrayTracksMotion}

var aliases = map[string]Filter{
	"grayscale": Gray,
	"grey":      Gray,
	"gaussian":  Blur,
	"mog2":      Background,
	"bg":        Background,
	"roi":       Overlay,
	"qr":        Match,
}

// ParseFilter resolves a filter name or one of its aliases.
func ParseFilter(name string) (Filter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Filters {
		if string(f) == name {
			return f, nil
		}
	}
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// Defaults.
const (
	DefaultDilateIterations = 2
	DefaultBlurKernel       = 21
)

// DefaultROI is the region used when none has been configured.
var DefaultROI = ROI{X1: 100, Y1: 100, X2: 300, Y2: 300}

// ROI is an axis-aligned region of interest in frame pixel coordinates.
type ROI struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect returns the region as an image.Rectangle.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// String formats the region the way the console accepts it.
func (r ROI) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X1, r.Y1, r.X2, r.Y2)
}

// ParseROI parses "x1,y1,x2,y2".
func ParseROI(s string) (ROI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, fmt.Errorf("%w: want x1,y1,x2,y2, got %q", ErrInvalidROI, s)
	}

	var v [4]int
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &v[i]); err != nil {
			return ROI{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidROI, p)
		}
	}
	return ROI{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// Snapshot is a self-consistent copy of the pipeline configuration taken once per frame.
type Snapshot struct {
	Flip             bool        `json:"flip"`
	Gray             bool        `json:"gray"`
	Blur             bool        `json:"blur"`
	Motion           bool        `json:"motion"`
	Dilate           bool        `json:"dilate"`
	Background       bool        `json:"background"`
	Overlay          bool        `json:"overlay"`
	Match            bool        `json:"match"`
	GrayTracksMotion bool        `json:"gray_tracks_motion"`
	BlurKernel       image.Point `json:"blur_kernel"`
	DilateIterations int         `json:"dilate_iterations"`
	ROI              ROI         `json:"roi"`
}

// Enabled reports whether f is on in the snapshot.
func (s Snapshot) Enabled(f Filter) bool {
	switch f {
	case Flip:
		return s.Flip
	case Gray:
		return s.Gray
	case Blur:
		return s.Blur
	case Motion:
		return s.Motion
	case Dilate:
		return s.Dilate
	case Background:
		return s.Background
	case Overlay:
		return s.Overlay
	case Match:
		return s.Match
	case GrayTracksMotion:
		return s.GrayTracksMotion
	}
	return false
}

// EnabledFilters returns the names of the enabled filters, sorted.
func (s Snapshot) EnabledFilters() []string {
	var names []string
	for _, f := range Filters {
		if s.Enabled(f) {
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return names
}

// geometry groups the multi-field settings that must never be observed half-written.
type geometry struct {
	blurKernel       image.Point
	dilateIterations int
	roi              ROI
}

// Pipeline is the live, concurrently mutable configuration. Each flag is an
// independent atomic. The ROI, blur kernel and dilate iterations are written
// and read together under a lock so no reader sees a torn rectangle.
type Pipeline struct {
	flags map[Filter]*atomic.Bool

	mu  sync.RWMutex
	geo geometry

	version atomic.Uint64
}

// NewPipeline returns a Pipeline with every filter off and default geometry.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		flags: make(map[Filter]*atomic.Bool, len(Filters)),
		geo: geometry{
			blurKernel:       image.Pt(DefaultBlurKernel, DefaultBlurKernel),
			dilateIterations: DefaultDilateIterations,
			roi:              DefaultROI,
		},
	}
	for _, f := range Filters {
		p.flags[f] = &atomic.Bool{}
	}
	return p
}

// Enabled reports whether filter f is on.
func (p *Pipeline) Enabled(f Filter) bool {
	flag, ok := p.flags[f]
	if !ok {
		return false
	}
	return flag.Load()
}

// SetEnabled turns filter f on or off.
func (p *Pipeline) SetEnabled(f Filter, on bool) error {
	flag, ok := p.flags[f]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, f)
	}
	flag.Store(on)
	p.version.Add(1)
	return nil
}

// Toggle flips filter f and returns its new state.
func (p *Pipeline) Toggle(f Filter) (bool, error) {
	flag, ok := p.flags[f]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownFilter, f)
	}
	for {
		old := flag.Load()
		if flag.CompareAndSwap(old, !old) {
			p.version.Add(1)
			return !old, nil
		}
	}
}

// SetROI replaces the region of interest. Corners given in reverse order are
// normalised. A region with no area is rejected.
func (p *Pipeline) SetROI(r ROI) error {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	if r.X1 == r.X2 || r.Y1 == r.Y2 {
		return fmt.Errorf("%w: %s has no area", ErrInvalidROI, r)
	}

	p.mu.Lock()
	p.geo.roi = r
	p.mu.Unlock()
	p.version.Add(1)
	return nil
}

// ROI returns the current region of interest.
func (p *Pipeline) ROI() ROI {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.geo.roi
}

// SetBlurKernel sets the Gaussian blur kernel size. Both sides must be odd and positive.
func (p *Pipeline) SetBlurKernel(w, h int) error {
	if w <= 0 || h <= 0 || w%2 == 0 || h%2 == 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidKernel, w, h)
	}

	p.mu.Lock()
	p.geo.blurKernel = image.Pt(w, h)
	p.mu.Unlock()
	p.version.Add(1)
	return nil
}

// SetDilateIterations sets how many times the motion mask is dilated. Values
// below 1 are ignored.
func (p *Pipeline) SetDilateIterations(n int) {
	if n < 1 {
		return
	}

	p.mu.Lock()
	p.geo.dilateIterations = n
	p.mu.Unlock()
	p.version.Add(1)
}

// Version increases on every successful write.
func (p *Pipeline) Version() uint64 {
	return p.version.Load()
}

// Snapshot copies the configuration. The geometry is copied under the read lock.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	geo := p.geo
	p.mu.RUnlock()

	return Snapshot{
		Flip:             p.Enabled(Flip),
		Gray:             p.Enabled(Gray),
		Blur:             p.Enabled(Blur),
		Motion:           p.Enabled(Motion),
		Dilate:           p.Enabled(Dilate),
		Background:       p.Enabled(Background),
		Overlay:          p.Enabled(Overlay),
		Match:            p.Enabled(Match),
		GrayTracksMotion: p.Enabled(GrayTracksMotion),
		BlurKernel:       geo.blurKernel,
		DilateIterations: geo.dilateIterations,
		ROI:              geo.roi,
	}
}

// Restore applies every field of s. Geometry that fails validation is reported
// but the flags are still applied.
func (p *Pipeline) Restore(s Snapshot) error {
	for _, f := range Filters {
		p.flags[f].Store(s.Enabled(f))
	}
	p.version.Add(1)

	var errs []error
	if s.BlurKernel != (image.Point{}) {
		if err := p.SetBlurKernel(s.BlurKernel.X, s.BlurKernel.Y); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ROI != (ROI{}) {
		if err := p.SetROI(s.ROI); err != nil {
			errs = append(errs, err)
		}
	}
	p.SetDilateIterations(s.DilateIterations)

	return errors.Join(errs...)
}
