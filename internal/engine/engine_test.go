package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/internal/collector"
	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/impact"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/rules"
	"github.com/leapstack-labs/leapmeta/internal/state"
	tlog "github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// fakeCollector returns fresh copies of its assets on every call.
type fakeCollector struct {
	name   string
	assets func() []*core.Asset
	err    error
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(context.Context) ([]*core.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assets(), nil
}

type fakeSources map[string]*fakeCollector

func (fs fakeSources) factory(src config.Source, _ *slog.Logger) (collector.Collector, error) {
	c, ok := fs[src.Name]
	if !ok {
		return nil, core.ErrUnknownSource
	}
	return c, nil
}

func crmAsset(table string, cols ...string) *core.Asset {
	a := &core.Asset{
		ID:        core.NewAssetID("crm", "main", table),
		Type:      core.AssetTable,
		Name:      table,
		Technical: core.TechnicalMetadata{Source: "crm", Location: "main." + table},
	}
	for i, c := range cols {
		a.Technical.Columns = append(a.Technical.Columns, core.Column{Name: c, DataType: "text", Nullable: true, Position: i})
	}
	return a
}

func setupEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.StatePath == "" {
		cfg.StatePath = state.MemoryPath
	}
	if cfg.Logger == nil {
		cfg.Logger = tlog.NewTestLogger(t)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := setupEngine(t, Config{})
		assert.NotNil(t, e.Store())
		assert.Equal(t, 0, e.Rules().Len())
		assert.Equal(t, 0, e.Glossary().Len())
		assert.Positive(t, e.concurrency)
	})

	t.Run("missing rules dir and glossary file", func(t *testing.T) {
		dir := t.TempDir()
		e := setupEngine(t, Config{
			RulesDir:     filepath.Join(dir, "rules"),
			GlossaryPath: filepath.Join(dir, "business_glossary.json"),
		})
		assert.Equal(t, 0, e.Rules().Len())
	})

	t.Run("broken rule", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.star"), []byte("def classify(:\n"), 0o600))
		_, err := New(Config{StatePath: state.MemoryPath, RulesDir: dir})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load rules")
	})

	t.Run("bad state path", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))
		_, err := New(Config{StatePath: filepath.Join(blocker, "catalog.db")})
		require.Error(t, err)
	})
}

func TestCollect_MergeAndStale(t *testing.T) {
	ctx := context.Background()
	tables := []string{"customers", "orders"}
	sources := fakeSources{"crm": {name: "crm", assets: func() []*core.Asset {
		var out []*core.Asset
		for _, tbl := range tables {
			out = append(out, crmAsset(tbl, "id", "email"))
		}
		return out
	}}}
	m := metrics.New()
	e := setupEngine(t, Config{NewCollector: sources.factory, Metrics: m})
	srcs := []config.Source{{Name: "crm", Type: config.SourceSQLite}}

	res, err := e.Collect(ctx, srcs)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, res.Run.Status)
	assert.Equal(t, 2, res.Run.Assets)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 2, res.Sources[0].Assets)
	firstRun := res.Run.ID

	// A user documents the customers table between runs.
	cust, err := e.Store().GetAsset(ctx, "crm.main.customers")
	require.NoError(t, err)
	assert.Equal(t, firstRun, cust.Operational.RunID)
	created := cust.Operational.CreatedAt
	cust.Business.Owner = "sales-ops"
	cust.Business.Description = "All customers"
	cust.Business.Tags = []string{"gold"}
	col, _ := cust.Column("email")
	col.Description = "Primary contact"
	require.NoError(t, e.Store().SaveAsset(ctx, cust))

	tables = []string{"customers"}
	res, err = e.Collect(ctx, srcs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Run.Assets)
	assert.Equal(t, 1, res.Run.Stale)

	cust, err = e.Store().GetAsset(ctx, "crm.main.customers")
	require.NoError(t, err)
	assert.Equal(t, "sales-ops", cust.Business.Owner)
	assert.Equal(t, "All customers", cust.Business.Description)
	assert.Equal(t, []string{"gold"}, cust.Business.Tags)
	assert.Equal(t, created, cust.Operational.CreatedAt)
	assert.Equal(t, res.Run.ID, cust.Operational.RunID)
	col, _ = cust.Column("email")
	assert.Equal(t, "Primary contact", col.Description)

	orders, err := e.Store().GetAsset(ctx, "crm.main.orders")
	require.NoError(t, err, "stale assets are kept")
	assert.True(t, orders.HasTag(core.TagStale))

	// Already stale assets are not counted again.
	res, err = e.Collect(ctx, srcs)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Run.Stale)

	// An asset that reappears loses the stale tag.
	tables = []string{"customers", "orders"}
	_, err = e.Collect(ctx, srcs)
	require.NoError(t, err)
	orders, err = e.Store().GetAsset(ctx, "crm.main.orders")
	require.NoError(t, err)
	assert.False(t, orders.HasTag(core.TagStale))

	assert.InDelta(t, 4, testutil.ToFloat64(m.Runs.WithLabelValues("completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StaleAssets), 0)
	assert.InDelta(t, 6, testutil.ToFloat64(m.AssetsCollected.WithLabelValues("crm")), 0)
}

func TestCollect_SourceFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	sources := fakeSources{
		"crm":  {name: "crm", assets: func() []*core.Asset { return []*core.Asset{crmAsset("customers", "id")} }},
		"down": {name: "down", err: boom},
	}
	m := metrics.New()
	e := setupEngine(t, Config{NewCollector: sources.factory, Metrics: m, Concurrency: 2})

	res, err := e.Collect(ctx, []config.Source{{Name: "crm"}, {Name: "down"}, {Name: "ghost"}})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, core.ErrUnknownSource)
	require.NotNil(t, res)

	assert.Equal(t, state.RunStatusFailed, res.Run.Status)
	assert.Equal(t, 2, res.Run.Errors)
	assert.Equal(t, 1, res.Run.Assets)
	assert.Contains(t, res.Run.Error, "connection refused")
	assert.Len(t, res.Failed(), 2)

	_, err = e.Store().GetAsset(ctx, "crm.main.customers")
	require.NoError(t, err, "healthy sources are still saved")
	assert.InDelta(t, 1, testutil.ToFloat64(m.CollectorErrors.WithLabelValues("down")), 0)
}

func TestCollect_FailedSourceKeepsAssetsFresh(t *testing.T) {
	ctx := context.Background()
	crm := &fakeCollector{name: "crm", assets: func() []*core.Asset { return []*core.Asset{crmAsset("customers", "id")} }}
	e := setupEngine(t, Config{NewCollector: fakeSources{"crm": crm}.factory})
	srcs := []config.Source{{Name: "crm"}}

	_, err := e.Collect(ctx, srcs)
	require.NoError(t, err)

	crm.err = errors.New("timeout")
	_, err = e.Collect(ctx, srcs)
	require.Error(t, err)

	a, err := e.Store().GetAsset(ctx, "crm.main.customers")
	require.NoError(t, err)
	assert.False(t, a.HasTag(core.TagStale))
}

func TestCollect_RulesAndInvalidAssets(t *testing.T) {
	ctx := context.Background()
	store, err := state.Open(ctx, state.MemoryPath, tlog.NewTestLogger(t))
	require.NoError(t, err)
	ruleEngine, err := rules.Compile(map[string]string{"pii.star": `
def classify(column):
    if column.name == "email":
        return {"classification": "confidential", "pii": True, "tags": ["contact"]}
`})
	require.NoError(t, err)

	g := glossary.New()
	term, err := g.Add(glossary.Term{Name: "Customer ID", Definition: "Key of a customer"})
	require.NoError(t, err)
	_, err = g.Link(term.ID, "crm.main.customers#id")
	require.NoError(t, err)

	sources := fakeSources{"crm": {name: "crm", assets: func() []*core.Asset {
		bad := crmAsset("broken", "id")
		bad.Type = "spreadsheet"
		return []*core.Asset{crmAsset("customers", "id", "email"), bad, nil}
	}}}
	e := NewWithStore(Config{NewCollector: sources.factory, Logger: tlog.NewTestLogger(t)}, store, ruleEngine, g)
	t.Cleanup(func() { _ = e.Close() })

	res, err := e.Collect(ctx, []config.Source{{Name: "crm"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sources[0].Assets)
	assert.Equal(t, 2, res.Sources[0].Skipped)

	a, err := store.GetAsset(ctx, "crm.main.customers")
	require.NoError(t, err)
	email, _ := a.Column("email")
	assert.True(t, email.PII)
	assert.Equal(t, core.ClassConfidential, email.Classification)
	assert.Equal(t, []string{"contact"}, email.Tags)
	id, _ := a.Column("id")
	assert.Equal(t, []string{"Customer ID"}, id.GlossaryTerms)

	_, err = store.GetAsset(ctx, "crm.main.broken")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestCollect_NoSources(t *testing.T) {
	e := setupEngine(t, Config{})
	_, err := e.Collect(context.Background(), nil)
	require.Error(t, err)
}

func TestCollect_FilesSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "raw"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw", "customers.csv"),
		[]byte("customer_id,email,signup_date\n1,ann@example.com,2024-01-02\n2,bob@example.com,2024-02-03\n"), 0o600))

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := setupEngine(t, Config{Now: func() time.Time { return now }})
	res, err := e.Collect(ctx, []config.Source{{Name: "landing", Type: config.SourceFiles, Path: dir}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Run.Assets)

	a, err := e.Store().GetAsset(ctx, "landing.raw.customers_csv")
	require.NoError(t, err)
	assert.Equal(t, core.AssetFile, a.Type)
	assert.EqualValues(t, 2, a.Technical.RowCount)
	assert.Equal(t, now, a.Operational.CollectedAt)
	assert.Equal(t, []string{"email"}, a.PIIColumns())
	require.NotNil(t, a.Quality)
}

func TestCollect_DuplicateHeaderStaysCataloged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	export := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(export, []byte("id,amount\n1,10\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.csv"), []byte("n\n1\n"), 0o600))

	e := setupEngine(t, Config{})
	sources := []config.Source{{Name: "lake", Type: config.SourceFiles, Path: dir}}
	_, err := e.Collect(ctx, sources)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(export, []byte("id,amount,ID\n1,10,2\n"), 0o600))
	res, err := e.Collect(ctx, sources)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 2, res.Sources[0].Assets)
	assert.Zero(t, res.Sources[0].Skipped)
	assert.Zero(t, res.Sources[0].Stale)

	a, err := e.Store().GetAsset(ctx, "lake.export_csv")
	require.NoError(t, err)
	assert.NotContains(t, a.Business.Tags, core.TagStale)
	require.Len(t, a.Technical.Columns, 3)
	assert.Equal(t, "ID_2", a.Technical.Columns[2].Name)
}

const testPipelines = `
assets:
  - id: bi.exec.customer_report
    type: report
    name: Customer Report
    owner: analytics
    criticality: high
jobs:
  - name: stage_customers
    transform: direct
    inputs: [crm.main.customers]
    outputs: [wh.stg.customers]
    columns:
      - from: crm.main.customers#email
        to: wh.stg.customers#email
  - name: publish
    transform: aggregate
    inputs: [wh.stg.customers]
    outputs: [bi.exec.customer_report]
`

func setupLineage(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	sources := fakeSources{"crm": {name: "crm", assets: func() []*core.Asset {
		a := crmAsset("customers", "id", "email")
		a.Technical.Columns[1].PII = true
		return []*core.Asset{a}
	}}}
	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPipelines), 0o600))

	e := setupEngine(t, Config{NewCollector: sources.factory, PipelinesPath: path})
	_, err := e.Collect(ctx, []config.Source{{Name: "crm"}})
	require.NoError(t, err)
	_, err = e.LoadPipelines(ctx, "")
	require.NoError(t, err)
	return e
}

func TestLoadPipelines(t *testing.T) {
	ctx := context.Background()
	e := setupLineage(t)

	edges, err := e.Store().ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
	colEdges, err := e.Store().ListColumnEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, colEdges, 1)

	report, err := e.Store().GetAsset(ctx, "bi.exec.customer_report")
	require.NoError(t, err)
	assert.Equal(t, core.AssetReport, report.Type)
	assert.Equal(t, []string{"wh.stg.customers"}, report.Lineage.Upstream)

	stg, err := e.Store().GetAsset(ctx, "wh.stg.customers")
	require.NoError(t, err)
	assert.Equal(t, core.AssetDataset, stg.Type)
	_, ok := stg.Column("email")
	assert.True(t, ok, "mapped columns are added to stubs")

	// Reloading is idempotent.
	stats, err := e.LoadPipelines(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Edges)

	t.Run("missing file", func(t *testing.T) {
		_, err := e.LoadPipelines(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLoadPipelines_StubsSurviveCollection(t *testing.T) {
	ctx := context.Background()
	e := setupLineage(t)

	// Stubs were never collected, so they never go stale.
	res, err := e.Collect(ctx, []config.Source{{Name: "crm"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Run.Stale)

	edges, err := e.Store().ListEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2, "re-collecting keeps lineage")
}

func TestTrackerGraphAndImpact(t *testing.T) {
	ctx := context.Background()
	e := setupLineage(t)

	tr, err := e.Tracker(ctx)
	require.NoError(t, err)
	hops, err := tr.Downstream("crm.main.customers", 0)
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, "wh.stg.customers", hops[0].ID)

	snap, err := e.Graph(ctx, lineage.GraphOptions{Focus: "wh.stg.customers", Depth: 1})
	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 3)

	rep, err := e.Impact(ctx, impact.Change{Target: "crm.main.customers", Type: impact.ChangeDropColumn, Column: "email"})
	require.NoError(t, err)
	require.NotEmpty(t, rep.Affected)
	assert.Equal(t, "wh.stg.customers", rep.Affected[0].ID)

	_, err = e.Impact(ctx, impact.Change{Target: "crm.main.nope"})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestLinkTerm(t *testing.T) {
	ctx := context.Background()
	glossaryPath := filepath.Join(t.TempDir(), "business_glossary.json")
	sources := fakeSources{"crm": {name: "crm", assets: func() []*core.Asset {
		return []*core.Asset{crmAsset("customers", "id", "email_address")}
	}}}
	e := setupEngine(t, Config{NewCollector: sources.factory, GlossaryPath: glossaryPath})
	_, err := e.Collect(ctx, []config.Source{{Name: "crm"}})
	require.NoError(t, err)

	term, err := e.Glossary().Add(glossary.Term{Name: "Email Address", Definition: "Contact email"})
	require.NoError(t, err)

	t.Run("suggest and apply", func(t *testing.T) {
		sugg, err := e.SuggestTerms(ctx, 0.5)
		require.NoError(t, err)
		require.Len(t, sugg, 1)
		assert.Equal(t, "crm.main.customers#email_address", sugg[0].Target)

		n, err := e.ApplySuggestions(ctx, sugg)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		a, err := e.Store().GetAsset(ctx, "crm.main.customers")
		require.NoError(t, err)
		col, _ := a.Column("email_address")
		assert.Equal(t, []string{"Email Address"}, col.GlossaryTerms)

		sugg, err = e.SuggestTerms(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, sugg, "linked pairs are not suggested again")
	})

	t.Run("asset link persists", func(t *testing.T) {
		got, err := e.LinkTerm(ctx, "email address", "crm.main.customers")
		require.NoError(t, err)
		assert.Contains(t, got.Links, "crm.main.customers")

		reloaded, err := glossary.Load(glossaryPath)
		require.NoError(t, err)
		saved, ok := reloaded.Get(term.ID)
		require.True(t, ok)
		assert.Contains(t, saved.Links, "crm.main.customers")

		terms, err := e.Store().ListTerms(ctx)
		require.NoError(t, err)
		require.Len(t, terms, 1)
	})

	t.Run("unlink", func(t *testing.T) {
		got, err := e.UnlinkTerm(ctx, term.ID, "crm.main.customers#email_address")
		require.NoError(t, err)
		assert.NotContains(t, got.Links, "crm.main.customers#email_address")

		a, err := e.Store().GetAsset(ctx, "crm.main.customers")
		require.NoError(t, err)
		col, _ := a.Column("email_address")
		assert.Empty(t, col.GlossaryTerms)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := e.LinkTerm(ctx, "no such term", "crm.main.customers")
		require.ErrorIs(t, err, core.ErrNotFound)
		_, err = e.LinkTerm(ctx, term.ID, "crm.main.missing")
		require.ErrorIs(t, err, core.ErrNotFound)
		_, err = e.LinkTerm(ctx, term.ID, "crm.main.customers#missing")
		require.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestApplySuggestions_PartialFailure(t *testing.T) {
	ctx := context.Background()
	glossaryPath := filepath.Join(t.TempDir(), "business_glossary.json")
	sources := fakeSources{"crm": {name: "crm", assets: func() []*core.Asset {
		return []*core.Asset{crmAsset("customers", "id", "email_address")}
	}}}
	e := setupEngine(t, Config{NewCollector: sources.factory, GlossaryPath: glossaryPath})
	_, err := e.Collect(ctx, []config.Source{{Name: "crm"}})
	require.NoError(t, err)
	term, err := e.Glossary().Add(glossary.Term{Name: "Email Address", Definition: "Contact email"})
	require.NoError(t, err)

	n, err := e.ApplySuggestions(ctx, []glossary.Suggestion{
		{TermID: term.ID, Target: "crm.main.customers#email_address"},
		{TermID: term.ID, Target: "crm.main.gone#email"},
	})
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 1, n)

	reloaded, err := glossary.Load(glossaryPath)
	require.NoError(t, err)
	saved, ok := reloaded.Get(term.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"crm.main.customers#email_address"}, saved.Links)

	terms, err := e.Store().ListTerms(ctx)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Contains(t, terms[0].Links, "crm.main.customers#email_address")
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	e := setupLineage(t)

	problems, err := e.Validate(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	// Dropping a column leaves a dangling column edge behind.
	a, err := e.Store().GetAsset(ctx, "wh.stg.customers")
	require.NoError(t, err)
	a.Technical.Columns = nil
	require.NoError(t, e.Store().SaveAsset(ctx, a))

	problems, err = e.Validate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, problems)
	assert.ErrorIs(t, problems[0], core.ErrNotFound)
}
