package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/internal/cli/testutil"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// execute runs the root command against the project in dir with JSON output.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "leapmeta.yaml"), "-o", "json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestHelpCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	for _, want := range []string{"collect", "assets", "lineage", "impact", "glossary", "graph", "serve", "doctor", "sample"} {
		assert.Contains(t, buf.String(), want)
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "leapmeta "+Version)
}

func TestCatalogWorkflow(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, err := execute(t, dir, "collect")
	require.NoError(t, err)
	collected := decode[struct {
		Run struct {
			Assets int    `json:"assets"`
			Status string `json:"status"`
		} `json:"run"`
		Lineage *struct {
			Roots []string `json:"roots"`
		} `json:"lineage"`
	}](t, out)
	assert.Equal(t, 3, collected.Run.Assets)
	require.NotNil(t, collected.Lineage)
	assert.Contains(t, collected.Lineage.Roots, "landing.orders_csv")

	t.Run("assets list", func(t *testing.T) {
		out, err := execute(t, dir, "assets", "list", "--pii")
		require.NoError(t, err)
		assets := decode[[]core.Asset](t, out)
		require.NotEmpty(t, assets)
		for _, a := range assets {
			assert.NotEmpty(t, a.PIIColumns(), a.ID)
		}
	})

	t.Run("assets show", func(t *testing.T) {
		out, err := execute(t, dir, "assets", "show", "landing.customers_csv")
		require.NoError(t, err)
		a := decode[core.Asset](t, out)
		assert.Equal(t, "landing.customers_csv", a.ID)
		assert.NotEmpty(t, a.Technical.Columns)
	})

	t.Run("lineage", func(t *testing.T) {
		out, err := execute(t, dir, "lineage", "landing.orders_csv", "--upstream=false")
		require.NoError(t, err)
		res := decode[struct {
			Asset      string `json:"asset"`
			Upstream   []struct{ ID string } `json:"upstream"`
			Downstream []struct{ ID string } `json:"downstream"`
		}](t, out)
		assert.Equal(t, "landing.orders_csv", res.Asset)
		assert.Empty(t, res.Upstream)
		var ids []string
		for _, h := range res.Downstream {
			ids = append(ids, h.ID)
		}
		assert.Contains(t, ids, "bi.reports.revenue_dashboard")
	})

	t.Run("lineage unknown asset", func(t *testing.T) {
		_, err := execute(t, dir, "lineage", "landing.nope")
		require.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("impact", func(t *testing.T) {
		out, err := execute(t, dir, "impact", "landing.orders_csv")
		require.NoError(t, err)
		rep := decode[struct {
			Severity string   `json:"severity"`
			Reports  []string `json:"reports"`
		}](t, out)
		assert.Equal(t, "critical", rep.Severity)
		assert.Contains(t, rep.Reports, "bi.reports.revenue_dashboard")
	})

	t.Run("glossary", func(t *testing.T) {
		_, err := execute(t, dir, "glossary", "add", "Net Margin", "-d", "Revenue minus cost of goods", "--status", "approved")
		require.NoError(t, err)

		out, err := execute(t, dir, "glossary", "link", "Net Margin", "landing.orders_csv")
		require.NoError(t, err)
		term := decode[glossary.Term](t, out)
		assert.Contains(t, term.Links, "landing.orders_csv")

		out, err = execute(t, dir, "glossary", "search", "margin")
		require.NoError(t, err)
		assert.Contains(t, out, "Net Margin")

		out, err = execute(t, dir, "assets", "show", "landing.orders_csv")
		require.NoError(t, err)
		assert.Contains(t, decode[core.Asset](t, out).Business.GlossaryTerms, "Net Margin")
	})

	t.Run("graph", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lineage.dot")
		_, err := execute(t, dir, "graph", "--format", "dot", "-f", path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "digraph lineage {")
		assert.Contains(t, string(data), "landing.orders_csv")
	})

	t.Run("validate", func(t *testing.T) {
		out, err := execute(t, dir, "validate")
		require.NoError(t, err)
		assert.True(t, decode[struct {
			Valid bool `json:"valid"`
		}](t, out).Valid)
	})

	t.Run("doctor", func(t *testing.T) {
		out, err := execute(t, dir, "doctor")
		require.NoError(t, err)
		rep := decode[struct {
			Summary struct {
				Assets int `json:"assets"`
			} `json:"summary"`
			Score int `json:"score"`
		}](t, out)
		assert.Greater(t, rep.Summary.Assets, 3)
		assert.LessOrEqual(t, rep.Score, 100)
	})

	t.Run("runs", func(t *testing.T) {
		out, err := execute(t, dir, "runs")
		require.NoError(t, err)
		runs := decode[[]struct {
			Status string `json:"status"`
		}](t, out)
		require.Len(t, runs, 1)
		assert.Equal(t, "completed", runs[0].Status)
	})
}

func TestSchemaCommand(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, err := execute(t, dir, "schema")
	require.NoError(t, err)
	schema := decode[map[string]any](t, out)
	assert.Contains(t, schema, "properties")
}

func TestSampleCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"-o", "json", "sample", "demo"})
	require.NoError(t, cmd.Execute())

	res := decode[struct {
		Files []string `json:"files"`
	}](t, buf.String())
	assert.Contains(t, res.Files, "leapmeta.yaml")
	assert.FileExists(t, filepath.Join("demo", "leapmeta.yaml"))

	// Never overwrites an existing project.
	cmd = NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"sample", "demo"})
	require.ErrorIs(t, cmd.Execute(), os.ErrExist)
}

func TestInvalidOutputFlag(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	_, err := execute(t, dir, "validate", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
