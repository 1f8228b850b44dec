package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// CreateRun starts a collection run over the named sources.
func (s *SQLiteStore) CreateRun(ctx context.Context, sources []string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	run := &Run{
		ID:        uuid.NewString(),
		Status:    RunStatusRunning,
		Sources:   sources,
		StartedAt: time.Now().UTC(),
	}
	s.logger.Debug("creating run", "id", run.ID, "sources", len(sources))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, sources, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), stringList(sources), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun records the outcome of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, res RunResult) error {
	if s.db == nil {
		return errNotOpened
	}
	if res.Status == "" {
		res.Status = RunStatusCompleted
	}
	var errMsg sql.NullString
	if res.Error != "" {
		errMsg = sql.NullString{String: res.Error, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, completed_at = ?, assets = ?, stale = ?, errors = ?, error = ?
		WHERE id = ?
	`, string(res.Status), formatTime(time.Now()), res.Assets, res.Stale, res.Errors, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	return nil
}

const runFields = `id, status, sources, started_at, completed_at, assets, stale, errors, error`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runFields+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runFields+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                Run
		status, sources    string
		startedAt          string
		completedAt, errMs sql.NullString
	)
	if err := sc.Scan(&run.ID, &status, &sources, &startedAt, &completedAt, &run.Assets, &run.Stale, &run.Errors, &errMs); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)

	var err error
	if run.Sources, err = parseStringList(sources); err != nil {
		return nil, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	run.Error = errMs.String
	return &run, nil
}
