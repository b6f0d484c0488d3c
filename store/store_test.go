package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planloop/planloop/core"
)

func record(runID string, finished time.Time) *Record {
	return &Record{
		RunID:       runID,
		Status:      core.RunStatusCompleted,
		Iterations:  2,
		FinalAnswer: "42",
		Messages: []core.Message{
			core.NewUserMessage("question"),
			core.NewAssistantMessage("42"),
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestInMemoryStore_SaveAndGet(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := record("r1", time.Now())
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "42", got.FinalAnswer)
	assert.Len(t, got.Messages, 2)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInMemoryStore_SaveReplaces(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := record("r1", time.Now())
	require.NoError(t, s.Save(ctx, rec))

	rec.Status = core.RunStatusFailed
	rec.ErrorKind = "RunTimeout"
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, got.Status)
	assert.Equal(t, "RunTimeout", got.ErrorKind)
}

func TestInMemoryStore_ListOrdersByFinishedAtDesc(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.Save(ctx, record("old", base.Add(-2*time.Hour))))
	require.NoError(t, s.Save(ctx, record("new", base)))
	require.NoError(t, s.Save(ctx, record("mid", base.Add(-time.Hour))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].RunID)
	assert.Equal(t, "mid", all[1].RunID)
	assert.Equal(t, "old", all[2].RunID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, record("r1", time.Now())))
	require.NoError(t, s.Delete(ctx, "r1"))
	require.NoError(t, s.Delete(ctx, "r1"), "deleting an absent run is not an error")

	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
