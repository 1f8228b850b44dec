package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

const assetColumns = `a.id, a.type, a.name, a.source, a.location, a.format, a.size_bytes,
	a.row_count, a.checksum, a.content_type, a.business, a.operational, a.quality`

// SaveAsset validates and upserts an asset, replacing its columns.
// Lineage refs are not stored; they are derived from the edge tables.
func (s *SQLiteStore) SaveAsset(ctx context.Context, a *core.Asset) error {
	return s.SaveAssets(ctx, []*core.Asset{a})
}

// SaveAssets upserts assets in a single transaction.
func (s *SQLiteStore) SaveAssets(ctx context.Context, assets []*core.Asset) error {
	for _, a := range assets {
		if a == nil {
			return fmt.Errorf("nil asset: %w", core.ErrInvalidAsset)
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range assets {
			if err := saveAsset(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveAsset(ctx context.Context, tx *sql.Tx, a *core.Asset) error {
	business, err := toJSON(a.Business)
	if err != nil {
		return fmt.Errorf("asset %s: %w", a.ID, err)
	}
	operational, err := toJSON(a.Operational)
	if err != nil {
		return fmt.Errorf("asset %s: %w", a.ID, err)
	}
	var quality sql.NullString
	if a.Quality != nil {
		q, err := toJSON(a.Quality)
		if err != nil {
			return fmt.Errorf("asset %s: %w", a.ID, err)
		}
		quality = sql.NullString{String: q, Valid: true}
	}

	t := a.Technical
	_, err = tx.ExecContext(ctx, `
		INSERT INTO assets (id, type, name, source, location, format, size_bytes, row_count,
			checksum, content_type, business, operational, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			source = excluded.source,
			location = excluded.location,
			format = excluded.format,
			size_bytes = excluded.size_bytes,
			row_count = excluded.row_count,
			checksum = excluded.checksum,
			content_type = excluded.content_type,
			business = excluded.business,
			operational = excluded.operational,
			quality = excluded.quality
	`, a.ID, string(a.Type), a.Name, t.Source, t.Location, string(t.Format), t.SizeBytes, t.RowCount,
		t.Checksum, t.ContentType, business, operational, quality)
	if err != nil {
		return fmt.Errorf("failed to save asset %s: %w", a.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM asset_columns WHERE asset_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to clear columns of %s: %w", a.ID, err)
	}
	for _, col := range t.Columns {
		var profile sql.NullString
		if col.Profile != nil {
			p, err := toJSON(col.Profile)
			if err != nil {
				return fmt.Errorf("asset %s column %s: %w", a.ID, col.Name, err)
			}
			profile = sql.NullString{String: p, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO asset_columns (asset_id, name, position, data_type, nullable, description,
				classification, pii, tags, glossary_terms, profile)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, col.Name, col.Position, col.DataType, boolInt(col.Nullable), col.Description,
			string(col.Classification), boolInt(col.PII), stringList(col.Tags), stringList(col.GlossaryTerms), profile)
		if err != nil {
			return fmt.Errorf("failed to save column %s of %s: %w", col.Name, a.ID, err)
		}
	}
	return nil
}

// GetAsset retrieves an asset with its columns and lineage refs.
func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (*core.Asset, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets a WHERE a.id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", id, err)
	}
	if err := s.attach(ctx, []*core.Asset{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssets returns the assets matching f, ordered by ID.
func (s *SQLiteStore) ListAssets(ctx context.Context, f Filter) ([]*core.Asset, error) {
	if s.db == nil {
		return nil, errNotOpened
	}

	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "a.type = ?")
		args = append(args, string(f.Type))
	}
	if f.Source != "" {
		where = append(where, "a.source = ?")
		args = append(args, f.Source)
	}
	if f.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(a.business, '$.tags') t WHERE lower(t.value) = lower(?))`)
		args = append(args, f.Tag)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := containsPattern(q)
		where = append(where, `(lower(a.id) LIKE ? ESCAPE '\' OR lower(a.name) LIKE ? ESCAPE '\'
			OR lower(coalesce(json_extract(a.business, '$.description'), '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if f.PIIOnly {
		where = append(where, `EXISTS (SELECT 1 FROM asset_columns c WHERE c.asset_id = a.id AND c.pii = 1)`)
	}

	query := `SELECT ` + assetColumns + ` FROM assets a`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	var assets []*core.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.attach(ctx, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// DeleteAsset removes an asset. Its columns and edges go with it.
func (s *SQLiteStore) DeleteAsset(ctx context.Context, id string) error {
	if s.db == nil {
		return errNotOpened
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
	}
	s.logger.Debug("deleted asset", "id", id)
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern matching q literally.
// Queries using it must declare ESCAPE '\'.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}

// SearchColumns finds columns whose name, description, tags or glossary
// terms contain q, case-insensitively.
func (s *SQLiteStore) SearchColumns(ctx context.Context, q string) ([]ColumnMatch, error) {
	if s.db == nil {
		return nil, errNotOpened
	}
	pattern := containsPattern(strings.TrimSpace(q))
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.asset_id, a.name, `+columnFields+`
		FROM asset_columns c
		JOIN assets a ON a.id = c.asset_id
		WHERE lower(c.name) LIKE ? ESCAPE '\' OR lower(c.description) LIKE ? ESCAPE '\'
			OR lower(c.tags) LIKE ? ESCAPE '\' OR lower(c.glossary_terms) LIKE ? ESCAPE '\'
		ORDER BY c.asset_id, c.position
	`, pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ColumnMatch
	for rows.Next() {
		var m ColumnMatch
		var assetID string
		col, err := scanColumn(rows, &assetID, &m.AssetName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		m.AssetID = assetID
		m.Column = col
		out = append(out, m)
	}
	return out, rows.Err()
}

// attach loads columns and lineage refs onto assets.
func (s *SQLiteStore) attach(ctx context.Context, assets []*core.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	byID := make(map[string]*core.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	query := `SELECT c.asset_id, ` + columnFields + ` FROM asset_columns c`
	var args []any
	if len(assets) == 1 {
		query += ` WHERE c.asset_id = ?`
		args = append(args, assets[0].ID)
	}
	query += ` ORDER BY c.asset_id, c.position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load columns: %w", err)
	}
	for rows.Next() {
		var assetID string
		col, err := scanColumn(rows, &assetID)
		if err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan column: %w", err)
		}
		if a, ok := byID[assetID]; ok {
			a.Technical.Columns = append(a.Technical.Columns, col)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	edges, err := s.ListEdges(ctx)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if a, ok := byID[e.From]; ok {
			a.Lineage.Downstream = append(a.Lineage.Downstream, e.To)
		}
		if a, ok := byID[e.To]; ok {
			a.Lineage.Upstream = append(a.Lineage.Upstream, e.From)
		}
	}
	for _, a := range assets {
		a.Lineage.Upstream = core.MergeStrings(a.Lineage.Upstream)
		a.Lineage.Downstream = core.MergeStrings(a.Lineage.Downstream)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(sc scanner) (*core.Asset, error) {
	var (
		a                     core.Asset
		typ, format           string
		business, operational string
		quality               sql.NullString
	)
	err := sc.Scan(&a.ID, &typ, &a.Name, &a.Technical.Source, &a.Technical.Location, &format,
		&a.Technical.SizeBytes, &a.Technical.RowCount, &a.Technical.Checksum, &a.Technical.ContentType,
		&business, &operational, &quality)
	if err != nil {
		return nil, err
	}
	a.Type = core.AssetType(typ)
	a.Technical.Format = core.Format(format)
	if err := json.Unmarshal([]byte(business), &a.Business); err != nil {
		return nil, fmt.Errorf("asset %s business metadata: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(operational), &a.Operational); err != nil {
		return nil, fmt.Errorf("asset %s operational metadata: %w", a.ID, err)
	}
	if quality.Valid {
		a.Quality = &core.QualityMetadata{}
		if err := json.Unmarshal([]byte(quality.String), a.Quality); err != nil {
			return nil, fmt.Errorf("asset %s quality metadata: %w", a.ID, err)
		}
	}
	return &a, nil
}

const columnFields = `c.name, c.position, c.data_type, c.nullable, c.description,
	c.classification, c.pii, c.tags, c.glossary_terms, c.profile`

// scanColumn scans leading destinations followed by columnFields.
func scanColumn(sc scanner, lead ...any) (core.Column, error) {
	var (
		col            core.Column
		nullable, pii  int
		classification string
		tags, terms    string
		profile        sql.NullString
	)
	dest := append(lead, &col.Name, &col.Position, &col.DataType, &nullable, &col.Description,
		&classification, &pii, &tags, &terms, &profile)
	if err := sc.Scan(dest...); err != nil {
		return col, err
	}
	col.Nullable = nullable != 0
	col.PII = pii != 0
	col.Classification = core.Classification(classification)

	var err error
	if col.Tags, err = parseStringList(tags); err != nil {
		return col, fmt.Errorf("column %s tags: %w", col.Name, err)
	}
	if col.GlossaryTerms, err = parseStringList(terms); err != nil {
		return col, fmt.Errorf("column %s glossary terms: %w", col.Name, err)
	}
	if profile.Valid {
		col.Profile = &core.ColumnProfile{}
		if err := json.Unmarshal([]byte(profile.String), col.Profile); err != nil {
			return col, fmt.Errorf("column %s profile: %w", col.Name, err)
		}
	}
	return col, nil
}
