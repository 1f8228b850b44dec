package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// SaveEdge upserts an asset-level edge. Both assets must exist.
// Cycle checks belong to the lineage tracker, not the store.
func (s *SQLiteStore) SaveEdge(ctx context.Context, e core.Edge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveEdge(ctx, tx, e)
	})
}

// SaveColumnEdge upserts a column-level edge. Both assets must exist.
func (s *SQLiteStore) SaveColumnEdge(ctx context.Context, e core.ColumnEdge) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return saveColumnEdge(ctx, tx, e)
	})
}

// ReplaceLineage swaps every stored edge for the given sets atomically.
func (s *SQLiteStore) ReplaceLineage(ctx context.Context, edges []core.Edge, colEdges []core.ColumnEdge) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM column_edges`); err != nil {
			return fmt.Errorf("failed to clear column edges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
		for _, e := range edges {
			if err := saveEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, e := range colEdges {
			if err := saveColumnEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("replaced lineage", "edges", len(edges), "column_edges", len(colEdges))
	return nil
}

// ListEdges returns every asset-level edge ordered by from, to.
func (s *SQLiteStore) ListEdges(ctx context.Context) ([]core.Edge, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, job, transform, description
		FROM edges
		ORDER BY from_id, to_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []core.Edge
	for rows.Next() {
		var e core.Edge
		var transform string
		if err := rows.Scan(&e.From, &e.To, &e.Job, &transform, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Transform = core.TransformType(transform)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListColumnEdges returns every column-level edge in a stable order.
func (s *SQLiteStore) ListColumnEdges(ctx context.Context) ([]core.ColumnEdge, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_asset, from_column, to_asset, to_column, job, transform, expression
		FROM column_edges
		ORDER BY from_asset, from_column, to_asset, to_column
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list column edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []core.ColumnEdge
	for rows.Next() {
		var e core.ColumnEdge
		var transform string
		if err := rows.Scan(&e.From.Asset, &e.From.Column, &e.To.Asset, &e.To.Column, &e.Job, &transform, &e.Expression); err != nil {
			return nil, fmt.Errorf("failed to scan column edge: %w", err)
		}
		e.Transform = core.TransformType(transform)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func saveEdge(ctx context.Context, tx *sql.Tx, e core.Edge) error {
	if err := requireAssets(ctx, tx, e.From, e.To); err != nil {
		return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (from_id, to_id, job, transform, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id) DO UPDATE SET
			job = excluded.job,
			transform = excluded.transform,
			description = excluded.description
	`, e.From, e.To, e.Job, string(e.Transform), e.Description)
	if err != nil {
		return fmt.Errorf("failed to save edge %s -> %s: %w", e.From, e.To, err)
	}
	return nil
}

func saveColumnEdge(ctx context.Context, tx *sql.Tx, e core.ColumnEdge) error {
	if err := requireAssets(ctx, tx, e.From.Asset, e.To.Asset); err != nil {
		return fmt.Errorf("column edge %s -> %s: %w", e.From, e.To, err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO column_edges (from_asset, from_column, to_asset, to_column, job, transform, expression)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_asset, from_column, to_asset, to_column) DO UPDATE SET
			job = excluded.job,
			transform = excluded.transform,
			expression = excluded.expression
	`, e.From.Asset, e.From.Column, e.To.Asset, e.To.Column, e.Job, string(e.Transform), e.Expression)
	if err != nil {
		return fmt.Errorf("failed to save column edge %s -> %s: %w", e.From, e.To, err)
	}
	return nil
}

func requireAssets(ctx context.Context, tx *sql.Tx, ids ...string) error {
	for _, id := range ids {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM assets WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
