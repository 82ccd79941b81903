package store

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/framepipe/internal/event"
)

func TestEventRepository_RecordList(t *testing.T) {
	repo := newTestStore(t).Events()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range []event.Kind{event.StageStarted, event.MatchChanged, event.StageFailed} {
		e := event.New(kind, "capture", map[string]any{"n": i})
		e.Time = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Record(e))
		require.NoError(t, repo.Record(e), "duplicate records are ignored")
	}

	all, err := repo.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, event.StageFailed, all[0].Kind, "newest first")
	assert.Equal(t, event.StageStarted, all[2].Kind)
	assert.Equal(t, float64(2), all[0].Detail["n"])
	assert.True(t, all[0].Time.Equal(base.Add(2*time.Second)))

	limited, err := repo.List("", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	matches, err := repo.List(event.MatchChanged, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "capture", matches[0].Stage)
}

func TestEventRepository_EmptyDetail(t *testing.T) {
	repo := newTestStore(t).Events()

	require.NoError(t, repo.Record(event.New(event.StageStopped, "display", nil)))

	events, err := repo.List("", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Detail)
}

func TestEventRepository_Prune(t *testing.T) {
	repo := newTestStore(t).Events()

	old := event.New(event.StageStarted, "capture", nil)
	old.Time = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Record(old))
	require.NoError(t, repo.Record(event.New(event.StageStarted, "capture", nil)))

	n, err := repo.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := repo.List("", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventRepository_Consume(t *testing.T) {
	repo := newTestStore(t).Events()
	logger, _ := test.NewNullLogger()

	bus := event.NewBus()
	ch, err := bus.Subscribe("store", 16)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		repo.Consume(context.Background(), ch, logger)
	}()

	bus.Emit(event.StageStarted, "capture", nil)
	bus.Emit(event.StageStarted, "processing", nil)
	bus.Close()
	<-done

	events, err := repo.List(event.StageStarted, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
