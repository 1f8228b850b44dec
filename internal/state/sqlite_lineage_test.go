package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

func seedChain(t *testing.T, s *SQLiteStore) {
	t.Helper()
	require.NoError(t, s.SaveAssets(context.Background(), []*core.Asset{
		testAsset("raw.customers", core.AssetFile, core.Column{Name: "id"}, core.Column{Name: "email", Position: 1}),
		testAsset("stg.customers", core.AssetDataset, core.Column{Name: "customer_id"}, core.Column{Name: "email", Position: 1}),
		testAsset("mart.customers", core.AssetTable, core.Column{Name: "customer_id"}),
	}))
}

func TestSaveEdge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedChain(t, s)

	require.NoError(t, s.SaveEdge(ctx, core.Edge{From: "raw.customers", To: "stg.customers", Job: "stage", Transform: core.TransformCopy}))
	require.NoError(t, s.SaveEdge(ctx, core.Edge{From: "stg.customers", To: "mart.customers", Job: "build"}))
	// Upsert updates the job.
	require.NoError(t, s.SaveEdge(ctx, core.Edge{From: "raw.customers", To: "stg.customers", Job: "stage_v2", Transform: core.TransformFilter}))

	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Edge{
		{From: "raw.customers", To: "stg.customers", Job: "stage_v2", Transform: core.TransformFilter},
		{From: "stg.customers", To: "mart.customers", Job: "build"},
	}, edges)

	err = s.SaveEdge(ctx, core.Edge{From: "raw.customers", To: "nope.nope"})
	require.ErrorIs(t, err, core.ErrNotFound)

	stg, err := s.GetAsset(ctx, "stg.customers")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw.customers"}, stg.Lineage.Upstream)
	assert.Equal(t, []string{"mart.customers"}, stg.Lineage.Downstream)

	// Re-saving an asset keeps its edges.
	require.NoError(t, s.SaveAsset(ctx, testAsset("stg.customers", core.AssetDataset, core.Column{Name: "customer_id"})))
	edges, err = s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestReplaceLineage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedChain(t, s)

	require.NoError(t, s.SaveEdge(ctx, core.Edge{From: "stg.customers", To: "mart.customers"}))

	colEdge := core.ColumnEdge{
		From:       core.ColumnRef{Asset: "raw.customers", Column: "id"},
		To:         core.ColumnRef{Asset: "stg.customers", Column: "customer_id"},
		Job:        "stage",
		Transform:  core.TransformExpression,
		Expression: "CAST(id AS INT)",
	}
	err := s.ReplaceLineage(ctx,
		[]core.Edge{{From: "raw.customers", To: "stg.customers", Job: "stage"}},
		[]core.ColumnEdge{colEdge},
	)
	require.NoError(t, err)

	edges, err := s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Edge{{From: "raw.customers", To: "stg.customers", Job: "stage"}}, edges)
	colEdges, err := s.ListColumnEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ColumnEdge{colEdge}, colEdges)

	// A bad edge rolls back the whole replacement.
	err = s.ReplaceLineage(ctx, []core.Edge{{From: "raw.customers", To: "ghost.table"}}, nil)
	require.ErrorIs(t, err, core.ErrNotFound)
	edges, err = s.ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
