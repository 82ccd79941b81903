// Package event distributes pipeline events to interested subscribers without
// ever blocking the publisher.
package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened.
type Kind string

const (
	StageStarted  Kind = "stage.started"
	StageStopped  Kind = "stage.stopped"
	StageFailed   Kind = "stage.failed"
	FramesDropped Kind = "frames.dropped"
	MatchChanged  Kind = "match.changed"
	MotionRegions Kind = "motion.regions"
	ConfigChanged Kind = "config.changed"
)

// Kinds lists every known event kind.
var Kinds = []Kind{StageStarted, StageStopped, StageFailed, FramesDropped, MatchChanged, MotionRegions, ConfigChanged}

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")
	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrBusClosed is returned by Subscribe after Close.
	ErrBusClosed = errors.New("event bus closed")
)

// Event is one occurrence published on the Bus.
type Event struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Stage  string         `json:"stage,omitempty"`
	Time   time.Time      `json:"time"`
	Detail map[string]any `json:"detail,omitempty"`
}

// New creates an Event with a fresh id and the current time.
func New(kind Kind, stage string, detail map[string]any) Event {
	return Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		Stage:  stage,
		Time:   time.Now(),
		Detail: detail,
	}
}

type subscriber struct {
	ch      chan Event
	dropped atomic.Uint64
}

// Bus fans events out to subscribers. A subscriber whose channel is full
// misses the event; the publisher never waits.
//
// A nil *Bus is valid and discards everything.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   atomic.Uint64
	closed      bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers id and returns the channel its events arrive on. size is
// the channel buffer; values below 1 are raised to 1.
func (b *Bus) Subscribe(id string, size int) (<-chan Event, error) {
	if size < 1 {
		size = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	s := &subscriber{ch: make(chan Event, size)}
	b.subscribers[id] = s
	return s.ch, nil
}

// Unsubscribe removes id and closes its channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	close(s.ch)
	return nil
}

// Publish sends e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for _, s := range b.subscribers {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Emit builds an event and publishes it.
func (b *Bus) Emit(kind Kind, stage string, detail map[string]any) {
	if b == nil {
		return
	}
	b.Publish(New(kind, stage, detail))
}

// Published returns how many events have been published.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped returns how many events id has missed.
func (b *Bus) Dropped(id string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, exists := b.subscribers[id]
	if !exists {
		return 0, ErrSubscriberNotFound
	}
	return s.dropped.Load(), nil
}

// Close closes every subscriber channel. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, s := range b.subscribers {
		close(s.ch)
		delete(b.subscribers, id)
	}
}
