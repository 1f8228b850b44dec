package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

func TestRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, []string{"landing", "wh"})
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, first.Status)
	assert.Len(t, first.ID, 36)
	assert.Zero(t, first.Duration())

	require.NoError(t, s.CompleteRun(ctx, first.ID, RunResult{Assets: 12, Stale: 1}))

	got, err := s.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, []string{"landing", "wh"}, got.Sources)
	assert.Equal(t, 12, got.Assets)
	assert.Equal(t, 1, got.Stale)
	require.NotNil(t, got.CompletedAt)
	assert.GreaterOrEqual(t, got.Duration().Nanoseconds(), int64(0))
	assert.True(t, first.StartedAt.Equal(got.StartedAt))

	second, err := s.CreateRun(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, second.ID, RunResult{Status: RunStatusFailed, Errors: 1, Error: "boom"}))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Nil(t, runs[0].Sources)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.ErrorIs(t, s.CompleteRun(ctx, "missing", RunResult{}), core.ErrNotFound)
	_, err = s.GetRun(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}
