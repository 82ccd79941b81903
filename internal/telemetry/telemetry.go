// Package telemetry counts frames through the pipeline and summarises
// processing latency.
package telemetry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of latency samples kept for the summary.
const DefaultWindow = 256

// DropCounter is anything that counts discarded frames, such as a frame buffer.
type DropCounter interface {
	Name() string
	Drops() uint64
	Len() int
	Cap() int
}

// Latency summarises the recent processing latencies in milliseconds.
type Latency struct {
	Samples int     `json:"samples"`
	MeanMs  float64 `json:"mean_ms"`
	StdDev  float64 `json:"stddev_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// BufferStats is the fill level and drop count of one buffer.
type BufferStats struct {
	Len   int    `json:"len"`
	Cap   int    `json:"cap"`
	Drops uint64 `json:"drops"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Captured  uint64                 `json:"captured"`
	Processed uint64                 `json:"processed"`
	Displayed uint64                 `json:"displayed"`
	Buffers   map[string]BufferStats `json:"buffers"`
	Latency   Latency                `json:"latency"`
}

// Stats collects counters from every stage. All methods are safe for concurrent
// use, and a nil *Stats ignores every update.
type Stats struct {
	captured  atomic.Uint64
	processed atomic.Uint64
	displayed atomic.Uint64

	mu      sync.Mutex
	buffers []DropCounter
	window  []float64
	next    int
	full    bool
}

// New creates Stats keeping the last window latency samples.
func New(window int) *Stats {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Stats{window: make([]float64, window)}
}

// Track adds a buffer whose drops are reported in snapshots.
func (s *Stats) Track(b DropCounter) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = append(s.buffers, b)
}

func (s *Stats) FrameCaptured() {
	if s != nil {
		s.captured.Add(1)
	}
}

func (s *Stats) FrameDisplayed() {
	if s != nil {
		s.displayed.Add(1)
	}
}

// FrameProcessed counts a processed frame and records how long it took.
func (s *Stats) FrameProcessed(took time.Duration) {
	if s == nil {
		return
	}
	s.processed.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.window[s.next] = float64(took) / float64(time.Millisecond)
	s.next++
	if s.next == len(s.window) {
		s.next = 0
		s.full = true
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{Buffers: map[string]BufferStats{}}
	if s == nil {
		return snap
	}

	snap.Captured = s.captured.Load()
	snap.Processed = s.processed.Load()
	snap.Displayed = s.displayed.Load()

	s.mu.Lock()
	for _, b := range s.buffers {
		snap.Buffers[b.Name()] = BufferStats{Len: b.Len(), Cap: b.Cap(), Drops: b.Drops()}
	}
	n := s.next
	if s.full {
		n = len(s.window)
	}
	samples := make([]float64, n)
	copy(samples, s.window[:n])
	s.mu.Unlock()

	snap.Latency = summarize(samples)
	return snap
}

func summarize(samples []float64) Latency {
	if len(samples) == 0 {
		return Latency{}
	}

	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 {
		std = 0
	}

	return Latency{
		Samples: len(samples),
		MeanMs:  mean,
		StdDev:  std,
		P95Ms:   stat.Quantile(0.95, stat.Empirical, samples, nil),
		MaxMs:   samples[len(samples)-1],
	}
}
