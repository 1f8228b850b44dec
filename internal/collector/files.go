package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmeta/internal/quality"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// FileOptions configures a files source.
type FileOptions struct {
	// Recursive descends into subdirectories; nil means true.
	Recursive *bool `mapstructure:"recursive"`
	// IncludeHidden keeps dot-files and dot-directories.
	IncludeHidden bool `mapstructure:"include_hidden"`
	// MaxRows bounds the rows sampled per file for profiling.
	MaxRows int `mapstructure:"max_rows"`
	// Workers bounds files processed concurrently.
	Workers int `mapstructure:"workers"`
}

// Default file collection limits.
const (
	DefaultMaxRows = 10000
	DefaultWorkers = 4
)

// FileCollector turns every file under a directory into a file asset.
type FileCollector struct {
	name   string
	root   string
	opts   FileOptions
	logger *slog.Logger
}

// NewFileCollector creates a collector for the directory root.
func NewFileCollector(name, root string, opts FileOptions, logger *slog.Logger) *FileCollector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &FileCollector{name: name, root: root, opts: opts, logger: logger}
}

// Name returns the source name.
func (c *FileCollector) Name() string { return c.name }

// Root returns the directory being collected.
func (c *FileCollector) Root() string { return c.root }

// Collect walks the root directory. Files that cannot be read or parsed are
// logged and still reported with whatever metadata was gathered.
func (c *FileCollector) Collect(ctx context.Context) ([]*core.Asset, error) {
	paths, err := c.list()
	if err != nil {
		return nil, err
	}

	assets := make([]*core.Asset, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			assets[i] = c.collectFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := assets[:0]
	for _, a := range assets {
		if a != nil {
			out = append(out, a)
		}
	}
	c.logger.Debug("collected files", "root", c.root, "assets", len(out))
	return out, nil
}

// list returns the files to collect in walk order.
func (c *FileCollector) list() ([]string, error) {
	info, err := os.Stat(c.root)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", c.name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s: %s is not a directory", c.name, c.root)
	}

	recursive := c.opts.Recursive == nil || *c.opts.Recursive
	var paths []string
	err = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == c.root {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if (hidden && !c.opts.IncludeHidden) || !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if hidden && !c.opts.IncludeHidden {
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: failed to walk %s: %w", c.name, c.root, err)
	}
	return paths, nil
}

// AssetID returns the ID a file under root gets.
func (c *FileCollector) AssetID(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	dir, base := filepath.Split(filepath.ToSlash(rel))
	return core.NewAssetID(c.name, strings.Trim(dir, "/"), base)
}

func (c *FileCollector) collectFile(path string) *core.Asset {
	logger := c.logger.With("path", path)

	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("failed to stat file", "error", err)
		return nil
	}

	format := FormatOf(path)
	a := &core.Asset{
		ID:   c.AssetID(path),
		Type: core.AssetFile,
		Name: filepath.Base(path),
		Technical: core.TechnicalMetadata{
			Source:    c.name,
			Location:  path,
			Format:    format,
			SizeBytes: info.Size(),
		},
		Operational: core.OperationalMetadata{UpdatedAt: info.ModTime().UTC()},
	}

	sum, err := checksum(path)
	if err != nil {
		logger.Warn("failed to checksum file", "error", err)
	} else {
		a.Technical.Checksum = sum
	}

	switch format {
	case core.FormatCSV, core.FormatJSON, core.FormatNDJSON:
		t, err := readTable(path, format, c.opts.MaxRows)
		if err != nil {
			logger.Warn("failed to profile file", "error", err)
			return a
		}
		a.Technical.Columns = Profile(t.Header, t.Rows)
		a.Technical.RowCount = t.Total
		a.Quality = quality.Assess(a, t.Rows)
	}
	return a
}

func checksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from walking the configured source root
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
