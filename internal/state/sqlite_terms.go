package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/leapmeta/internal/glossary"
)

// SaveTerms mirrors the glossary into the catalog, replacing stored terms.
func (s *SQLiteStore) SaveTerms(ctx context.Context, terms []glossary.Term) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM terms`); err != nil {
			return fmt.Errorf("failed to clear terms: %w", err)
		}
		for _, t := range terms {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("term %s: %w", t.Name, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO terms (id, name, data, updated_at) VALUES (?, ?, ?, ?)`,
				t.ID, t.Name, string(data), formatTime(t.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to save term %s: %w", t.Name, err)
			}
		}
		return nil
	})
}

// ListTerms returns the stored terms ordered by name.
func (s *SQLiteStore) ListTerms(ctx context.Context) ([]glossary.Term, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM terms ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []glossary.Term
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan term: %w", err)
		}
		var t glossary.Term
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to decode term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}
