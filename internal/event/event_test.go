package event

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	e := New(StageStarted, "capture", map[string]any{"seq": 1})

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, StageStarted, e.Kind)
	assert.Equal(t, "capture", e.Stage)
	assert.False(t, e.Time.IsZero())

	assert.NotEqual(t, e.ID, New(StageStarted, "capture", nil).ID)
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	defer b.Close()

	a, err := b.Subscribe("a", 4)
	require.NoError(t, err)
	c, err := b.Subscribe("c", 4)
	require.NoError(t, err)

	b.Emit(MatchChanged, "processing", map[string]any{"matched": true})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, MatchChanged, e.Kind)
		assert.Equal(t, true, e.Detail["matched"])
	}
	assert.Equal(t, uint64(1), b.Published())
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, err := b.Subscribe("slow", 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Emit(FramesDropped, "capture", nil)
	}

	dropped, err := b.Dropped("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), dropped)
}

func TestBus_SubscribeErrors(t *testing.T) {
	b := NewBus()

	_, err := b.Subscribe("x", 1)
	require.NoError(t, err)

	_, err = b.Subscribe("x", 1)
	assert.ErrorIs(t, err, ErrSubscriberExists)

	assert.ErrorIs(t, b.Unsubscribe("missing"), ErrSubscriberNotFound)
	_, err = b.Dropped("missing")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)

	b.Close()
	_, err = b.Subscribe("y", 1)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, err := b.Subscribe("x", 1)
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe("x"))

	_, open := <-ch
	assert.False(t, open)

	b.Emit(StageStopped, "display", nil)
}

func TestBus_NilIsSilent(t *testing.T) {
	var b *Bus
	b.Emit(StageFailed, "capture", nil)
	b.Publish(New(StageFailed, "capture", nil))
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	b := NewBus()
	ch, err := b.Subscribe("x", 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Emit(MotionRegions, "processing", nil)
			}
		}()
	}
	wg.Wait()
	b.Close()

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 400, n)
}
