package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

func TestNew(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	tests := []struct {
		name    string
		src     config.Source
		want    any
		wantErr string
		is      error
	}{
		{
			name: "files",
			src:  config.Source{Name: "landing", Type: "files", Path: t.TempDir()},
			want: &FileCollector{},
		},
		{
			name: "files with options",
			src: config.Source{Name: "landing", Type: "files", Path: t.TempDir(), Options: map[string]any{
				"recursive": "false", "max_rows": 10,
			}},
			want: &FileCollector{},
		},
		{
			name: "sqlite",
			src:  config.Source{Name: "app", Type: "sqlite", Path: "app.db"},
			want: &SQLCollector{},
		},
		{
			name: "postgres upper case type",
			src:  config.Source{Name: "wh", Type: "POSTGRES", DSN: "postgres://localhost/wh", Options: map[string]any{"row_counts": true}},
			want: &SQLCollector{},
		},
		{
			name: "s3",
			src: config.Source{Name: "lake", Type: "s3", Options: map[string]any{
				"endpoint": "localhost:9000", "bucket": "raw", "access_key": "a", "secret_key": "b",
			}},
			want: &ObjectStoreCollector{},
		},
		{
			name:    "s3 endpoint with scheme",
			src:     config.Source{Name: "lake", Type: "s3", Options: map[string]any{"endpoint": "http://localhost:9000", "bucket": "raw"}},
			wantErr: "without a scheme",
		},
		{
			name:    "unknown option",
			src:     config.Source{Name: "landing", Type: "files", Path: ".", Options: map[string]any{"recurse": true}},
			wantErr: "invalid options",
		},
		{
			name: "unknown type",
			src:  config.Source{Name: "x", Type: "ftp"},
			is:   core.ErrUnknownSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.src, logger)
			switch {
			case tt.is != nil:
				require.ErrorIs(t, err, tt.is)
				return
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
			assert.Equal(t, tt.src.Name, c.Name())
		})
	}
}

func TestNew_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEAPMETA_TEST_ROOT", dir)

	c, err := New(config.Source{Name: "landing", Type: "files", Path: "${LEAPMETA_TEST_ROOT}"}, nil)
	require.NoError(t, err)
	fc, ok := c.(*FileCollector)
	require.True(t, ok)
	assert.Equal(t, dir, fc.Root())
}

func TestFormatOf(t *testing.T) {
	tests := map[string]core.Format{
		"a.csv":        core.FormatCSV,
		"a.JSON":       core.FormatJSON,
		"events.jsonl": core.FormatNDJSON,
		"x.ndjson":     core.FormatNDJSON,
		"t.parquet":    core.FormatParquet,
		"notes.txt":    core.FormatText,
		"README.md":    core.FormatText,
		"logo.png":     core.FormatImage,
		"photo.jpeg":   core.FormatImage,
		"anim.gif":     core.FormatImage,
		"archive.zip":  core.FormatOther,
		"Makefile":     core.FormatOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, FormatOf(name), name)
	}
}

func TestCollectorInterface(t *testing.T) {
	var _ Collector = (*FileCollector)(nil)
	var _ Collector = (*SQLCollector)(nil)
	var _ Collector = (*ObjectStoreCollector)(nil)

	c := NewFileCollector("empty", t.TempDir(), FileOptions{}, nil)
	assets, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
}
