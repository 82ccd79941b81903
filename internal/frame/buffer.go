package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Buffer defaults.
const (
	DefaultCapacity   = 10
	DefaultPutTimeout = time.Second
)

var (
	// ErrFull is returned by Put when a BlockThenDrop buffer stayed full for the whole timeout.
	ErrFull = errors.New("frame buffer full")
	// ErrEmpty is returned by Get when no frame arrived before the timeout.
	ErrEmpty = errors.New("frame buffer empty")
)

// Policy selects what a Buffer does when a frame is put into it while full.
type Policy int

const (
	// BlockThenDrop blocks the producer up to the put timeout, then discards the new frame.
	BlockThenDrop Policy = iota
	// DropOldest evicts the oldest resident frame to make room for the new one.
	DropOldest
)

// String returns the policy name used in flags and config files.
func (p Policy) String() string {
	switch p {
	case BlockThenDrop:
		return "block"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a policy name as produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "block", "block-then-drop":
		return BlockThenDrop, nil
	case "drop-oldest", "drop":
		return DropOldest, nil
	default:
		return 0, fmt.Errorf("unknown buffer policy %q", s)
	}
}

// Buffer is a bounded FIFO of frames shared by one producer and one consumer.
type Buffer struct {
	name       string
	capacity   int
	policy     Policy
	putTimeout time.Duration

	mu    sync.Mutex
	items []*Frame

	notEmpty chan struct{}
	notFull  chan struct{}

	drops atomic.Uint64
}

// NewBuffer creates a Buffer. Non-positive capacity or timeout fall back to the defaults.
func NewBuffer(name string, capacity int, policy Policy, putTimeout time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if putTimeout <= 0 {
		putTimeout = DefaultPutTimeout
	}

	return &Buffer{
		name:       name,
		capacity:   capacity,
		policy:     policy,
		putTimeout: putTimeout,
		items:      make([]*Frame, 0, capacity),
		notEmpty:   make(chan struct{}, 1),
		notFull:    make(chan struct{}, 1),
	}
}

// Name returns the buffer name used in logs and telemetry.
func (b *Buffer) Name() string {
	return b.name
}

// Policy returns the overflow policy.
func (b *Buffer) Policy() Policy {
	return b.policy
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Len returns the number of frames currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// IsEmpty reports whether the buffer holds no frames.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// Drops returns how many frames were discarded by this buffer's overflow policy.
func (b *Buffer) Drops() uint64 {
	return b.drops.Load()
}

// Seqs returns the sequence numbers of the resident frames, oldest first.
func (b *Buffer) Seqs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seqs := make([]uint64, len(b.items))
	for i, f := range b.items {
		seqs[i] = f.Seq
	}
	return seqs
}

// Put inserts f. On success the buffer owns f.
//
// Under DropOldest Put never fails: the evicted frame is closed and counted as a drop.
// Under BlockThenDrop Put waits up to the put timeout for space and returns ErrFull
// when none appeared. The rejected frame is counted as a drop but stays owned by the
// caller, which must close it.
func (b *Buffer) Put(ctx context.Context, f *Frame) error {
	if b.policy == DropOldest {
		b.mu.Lock()
		if len(b.items) >= b.capacity {
			oldest := b.items[0]
			b.items[0] = nil
			b.items = b.items[1:]
			oldest.Close()
			b.drops.Add(1)
		}
		b.items = append(b.items, f)
		b.mu.Unlock()
		signal(b.notEmpty)
		return nil
	}

	timer := time.NewTimer(b.putTimeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.items) < b.capacity {
			b.items = append(b.items, f)
			b.mu.Unlock()
			signal(b.notEmpty)
			return nil
		}
		b.mu.Unlock()

		select {
		case <-b.notFull:
		case <-timer.C:
			b.drops.Add(1)
			return ErrFull
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get removes and returns the oldest frame. It waits up to timeout for one to
// arrive and returns ErrEmpty if none did. A non-positive timeout waits until a
// frame arrives or ctx is done.
func (b *Buffer) Get(ctx context.Context, timeout time.Duration) (*Frame, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		if f := b.pop(); f != nil {
			return f, nil
		}

		select {
		case <-b.notEmpty:
		case <-expired:
			// A frame may have landed between the last check and the deadline.
			if f := b.pop(); f != nil {
				return f, nil
			}
			return nil, ErrEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain closes and removes every resident frame and returns how many there were.
func (b *Buffer) Drain() int {
	b.mu.Lock()
	items := b.items
	b.items = make([]*Frame, 0, b.capacity)
	b.mu.Unlock()

	for _, f := range items {
		f.Close()
	}
	signal(b.notFull)
	return len(items)
}

func (b *Buffer) pop() *Frame {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return nil
	}
	f := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	b.mu.Unlock()

	signal(b.notFull)
	return f
}

// signal leaves a wake-up token in ch without blocking.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
