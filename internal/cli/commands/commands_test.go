package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name  string
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{"collect", NewCollectCommand(), "collect", []string{"source", "no-pipelines"}},
		{"lineage", NewLineageCommand(), "lineage <asset|asset#column>", []string{"upstream", "downstream", "depth", "column"}},
		{"impact", NewImpactCommand(), "impact <asset|asset#column>", []string{"change", "column", "depth"}},
		{"graph", NewGraphCommand(), "graph", []string{"format", "focus", "depth", "columns", "file"}},
		{"schema", NewSchemaCommand(), "schema", []string{"file"}},
		{"validate", NewValidateCommand(), "validate", nil},
		{"doctor", NewDoctorCommand(), "doctor", nil},
		{"runs", NewRunsCommand(), "runs", []string{"limit"}},
		{"serve", NewServeCommand(), "serve", []string{"port", "watch", "collect", "open"}},
		{"sample", NewSampleCommand(), "sample <dir>", []string{"seed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestNewAssetsCommand(t *testing.T) {
	cmd := NewAssetsCommand()

	assert.Equal(t, "assets", cmd.Use)
	assert.Contains(t, cmd.Aliases, "asset")

	names := make(map[string]*cobra.Command)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = sub
	}
	require.Contains(t, names, "list")
	require.Contains(t, names, "show")
	require.Contains(t, names, "columns")

	for _, flag := range []string{"type", "source", "tag", "query", "pii", "limit"} {
		assert.NotNil(t, names["list"].Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "q", names["list"].Flags().Lookup("query").Shorthand)
}

func TestNewGlossaryCommand(t *testing.T) {
	cmd := NewGlossaryCommand()

	assert.Equal(t, "glossary", cmd.Use)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"list", "add", "search", "link", "unlink", "suggest", "import"}, names)
}

func TestBuildChange(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		opts       *ImpactOptions
		wantTarget string
		wantColumn string
		wantType   string
		wantErr    bool
	}{
		{"asset defaults to drop_asset", "files.raw.orders", &ImpactOptions{}, "files.raw.orders", "", "drop_asset", false},
		{"column ref defaults to drop_column", "files.raw.orders#amount", &ImpactOptions{}, "files.raw.orders", "amount", "drop_column", false},
		{"column flag", "files.raw.orders", &ImpactOptions{Column: "amount"}, "files.raw.orders", "amount", "drop_column", false},
		{"explicit change", "files.raw.orders#amount", &ImpactOptions{Change: "type_change"}, "files.raw.orders", "amount", "type_change", false},
		{"unknown change", "files.raw.orders", &ImpactOptions{Change: "explode"}, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := buildChange(tt.target, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTarget, c.Target)
			assert.Equal(t, tt.wantColumn, c.Column)
			assert.Equal(t, tt.wantType, string(c.Type))
		})
	}
}
