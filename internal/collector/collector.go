// Package collector gathers technical metadata from configured sources.
//
// Each source type has a Collector: files on disk, SQL databases (sqlite,
// duckdb, postgres) and S3-compatible object stores. New builds the right
// collector from a config.Source.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Collector gathers assets from one source.
type Collector interface {
	// Name returns the configured source name.
	Name() string
	// Collect returns every asset the source currently holds.
	Collect(ctx context.Context) ([]*core.Asset, error)
}

// New builds a collector for src. Unknown source types return core.ErrUnknownSource.
// ${VAR} references in the source are expanded first.
func New(src config.Source, logger *slog.Logger) (Collector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	src = src.Expanded()
	logger = logger.With("source", src.Name)

	switch strings.ToLower(src.Type) {
	case config.SourceFiles:
		var opts FileOptions
		if err := decodeOptions(src.Options, &opts); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return NewFileCollector(src.Name, src.Path, opts, logger), nil

	case config.SourceSQLite, config.SourceDuckDB, config.SourcePostgres:
		var opts SQLOptions
		if err := decodeOptions(src.Options, &opts); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return OpenSQLCollector(src, opts, logger)

	case config.SourceS3:
		var cfg ObjectStoreConfig
		if err := decodeOptions(src.Options, &cfg); err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		return NewObjectStoreCollector(src.Name, cfg, logger)
	}
	return nil, fmt.Errorf("source %s: %w: %q", src.Name, core.ErrUnknownSource, src.Type)
}

// decodeOptions decodes a source's free-form options into a typed struct.
// Values coming from env vars are strings, so weak typing is enabled.
func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

// FormatOf maps a file name to its format category.
func FormatOf(name string) core.Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return core.FormatCSV
	case ".json":
		return core.FormatJSON
	case ".jsonl", ".ndjson":
		return core.FormatNDJSON
	case ".parquet":
		return core.FormatParquet
	case ".txt", ".md":
		return core.FormatText
	case ".jpg", ".jpeg", ".png", ".gif":
		return core.FormatImage
	}
	return core.FormatOther
}
