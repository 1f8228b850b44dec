package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"   // postgres driver ("pgx")
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// SQLOptions configures a database source.
type SQLOptions struct {
	// RowCounts runs COUNT(*) on every table and view.
	RowCounts bool `mapstructure:"row_counts"`
	// Schemas restricts collection to these schemas; empty means all
	// non-system schemas.
	Schemas []string `mapstructure:"schemas"`
}

// systemSchemas are never collected.
var systemSchemas = []string{"information_schema", "pg_catalog", "pg_toast"}

// SQLCollector reads table and column metadata from a database.
type SQLCollector struct {
	name    string
	dialect string // sqlite, duckdb or postgres
	driver  string
	dsn     string
	db      *sql.DB
	opts    SQLOptions
	logger  *slog.Logger
}

// NewSQLCollector creates a collector over an open database. The caller
// keeps ownership of db.
func NewSQLCollector(name, dialect string, db *sql.DB, opts SQLOptions, logger *slog.Logger) *SQLCollector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLCollector{name: name, dialect: dialect, db: db, opts: opts, logger: logger}
}

// OpenSQLCollector creates a collector that opens its own connection for
// each Collect call.
func OpenSQLCollector(src config.Source, opts SQLOptions, logger *slog.Logger) (*SQLCollector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &SQLCollector{name: src.Name, dialect: strings.ToLower(src.Type), opts: opts, logger: logger}
	switch c.dialect {
	case config.SourceSQLite:
		c.driver, c.dsn = "sqlite", src.Path
	case config.SourceDuckDB:
		c.driver, c.dsn = "duckdb", src.Path
	case config.SourcePostgres:
		c.driver, c.dsn = "pgx", src.DSN
	default:
		return nil, fmt.Errorf("source %s: %w: %q", src.Name, core.ErrUnknownSource, src.Type)
	}
	return c, nil
}

// Name returns the source name.
func (c *SQLCollector) Name() string { return c.name }

// relation is a table or view found in the catalog.
type relation struct {
	schema string
	name   string
	kind   core.AssetType
	cols   []core.Column
}

// Collect lists tables and views with their columns.
func (c *SQLCollector) Collect(ctx context.Context) ([]*core.Asset, error) {
	db := c.db
	if db == nil {
		opened, err := sql.Open(c.driver, c.dsn)
		if err != nil {
			return nil, fmt.Errorf("source %s: failed to open %s: %w", c.name, c.dialect, err)
		}
		defer func() { _ = opened.Close() }()
		if err := opened.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("source %s: failed to connect to %s: %w", c.name, c.dialect, err)
		}
		db = opened
	}

	var rels []*relation
	var err error
	if c.dialect == config.SourceSQLite {
		rels, err = c.sqliteRelations(ctx, db)
	} else {
		rels, err = c.informationSchemaRelations(ctx, db)
	}
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", c.name, err)
	}

	assets := make([]*core.Asset, 0, len(rels))
	for _, rel := range rels {
		a := &core.Asset{
			ID:   core.NewAssetID(c.name, rel.schema, rel.name),
			Type: rel.kind,
			Name: rel.name,
			Technical: core.TechnicalMetadata{
				Source:   c.name,
				Location: rel.schema + "." + rel.name,
				Columns:  rel.cols,
			},
		}
		for i := range a.Technical.Columns {
			col := &a.Technical.Columns[i]
			if pii, _ := DetectPII(col.Name, nil); pii {
				col.PII = true
				col.Classification = core.ClassConfidential
			}
		}
		if c.opts.RowCounts {
			n, err := c.rowCount(ctx, db, rel)
			if err != nil {
				c.logger.Warn("failed to count rows", "relation", a.Technical.Location, "error", err)
			} else {
				a.Technical.RowCount = n
			}
		}
		assets = append(assets, a)
	}
	c.logger.Debug("collected relations", "dialect", c.dialect, "assets", len(assets))
	return assets, nil
}

func (c *SQLCollector) wantSchema(schema string) bool {
	if slices.Contains(systemSchemas, strings.ToLower(schema)) || strings.HasPrefix(schema, "pg_") {
		return false
	}
	return len(c.opts.Schemas) == 0 || slices.Contains(c.opts.Schemas, schema)
}

func (c *SQLCollector) sqliteRelations(ctx context.Context, db *sql.DB) ([]*relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var rels []*relation
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		rels = append(rels, &relation{schema: "main", name: name, kind: relationKind(typ)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if !c.wantSchema("main") {
		return nil, nil
	}

	for _, rel := range rels {
		cols, err := c.sqliteColumns(ctx, db, rel.name)
		if err != nil {
			return nil, err
		}
		rel.cols = cols
	}
	return rels, nil
}

func (c *SQLCollector) sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]core.Column, error) {
	rows, err := db.QueryContext(ctx, `SELECT cid, name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []core.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if typ == "" {
			typ = TypeUnknown
		}
		cols = append(cols, core.Column{Name: name, DataType: strings.ToLower(typ), Nullable: notNull == 0, Position: cid})
	}
	return cols, rows.Err()
}

func (c *SQLCollector) informationSchemaRelations(ctx context.Context, db *sql.DB) ([]*relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		ORDER BY table_schema, table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var rels []*relation
	byKey := make(map[string]*relation)
	for rows.Next() {
		var schema, name, typ string
		if err := rows.Scan(&schema, &name, &typ); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		if !c.wantSchema(schema) {
			continue
		}
		rel := &relation{schema: schema, name: name, kind: relationKind(typ)}
		rels = append(rels, rel)
		byKey[schema+"."+name] = rel
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	crows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name, column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		ORDER BY table_schema, table_name, ordinal_position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer func() { _ = crows.Close() }()

	for crows.Next() {
		var (
			schema, table, name, typ, nullable string
			position                           int
		)
		if err := crows.Scan(&schema, &table, &name, &typ, &nullable, &position); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		rel, ok := byKey[schema+"."+table]
		if !ok {
			continue
		}
		rel.cols = append(rel.cols, core.Column{
			Name:     name,
			DataType: strings.ToLower(typ),
			Nullable: strings.EqualFold(nullable, "YES"),
			Position: position - 1,
		})
	}
	return rels, crows.Err()
}

func relationKind(typ string) core.AssetType {
	if strings.Contains(strings.ToUpper(typ), "VIEW") {
		return core.AssetView
	}
	return core.AssetTable
}

func (c *SQLCollector) rowCount(ctx context.Context, db *sql.DB, rel *relation) (int64, error) {
	target := quoteIdent(rel.name)
	if c.dialect != config.SourceSQLite {
		target = quoteIdent(rel.schema) + "." + target
	}
	var n int64
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+target).Scan(&n)
	return n, err
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
