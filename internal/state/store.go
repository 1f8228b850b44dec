// Package state persists the catalog in SQLite: assets with their columns,
// asset and column lineage edges, collection runs and glossary terms.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Store is the catalog persistence interface.
type Store interface {
	Close() error

	SaveAsset(ctx context.Context, a *core.Asset) error
	SaveAssets(ctx context.Context, assets []*core.Asset) error
	GetAsset(ctx context.Context, id string) (*core.Asset, error)
	ListAssets(ctx context.Context, f Filter) ([]*core.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
	SearchColumns(ctx context.Context, q string) ([]ColumnMatch, error)

	SaveEdge(ctx context.Context, e core.Edge) error
	ListEdges(ctx context.Context) ([]core.Edge, error)
	SaveColumnEdge(ctx context.Context, e core.ColumnEdge) error
	ListColumnEdges(ctx context.Context) ([]core.ColumnEdge, error)
	ReplaceLineage(ctx context.Context, edges []core.Edge, colEdges []core.ColumnEdge) error

	CreateRun(ctx context.Context, sources []string) (*Run, error)
	CompleteRun(ctx context.Context, id string, res RunResult) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	SaveTerms(ctx context.Context, terms []glossary.Term) error
	ListTerms(ctx context.Context) ([]glossary.Term, error)
}

// Filter narrows ListAssets. Zero fields match everything.
type Filter struct {
	Type   core.AssetType
	Source string
	// Tag matches a business tag, case-insensitively.
	Tag string
	// Query is a case-insensitive substring of the ID, name or description.
	Query string
	// PIIOnly keeps assets with at least one PII column.
	PIIOnly bool
	Limit   int
}

// ColumnMatch is a column found by SearchColumns.
type ColumnMatch struct {
	AssetID   string      `json:"asset_id"`
	AssetName string      `json:"asset_name"`
	Column    core.Column `json:"column"`
}

// Ref returns the column reference of the match.
func (m ColumnMatch) Ref() core.ColumnRef {
	return core.ColumnRef{Asset: m.AssetID, Column: m.Column.Name}
}

// RunStatus is the state of a collection run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records one collection.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Sources     []string   `json:"sources"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Assets      int        `json:"assets"`
	Stale       int        `json:"stale"`
	Errors      int        `json:"errors"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunResult is the outcome recorded by CompleteRun.
type RunResult struct {
	Status RunStatus
	Assets int
	Stale  int
	Errors int
	Error  string
}
