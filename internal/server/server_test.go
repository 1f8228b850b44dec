package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/impact"
	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/server/notifier"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/internal/testutil"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

const testPipelines = `
assets:
  - id: bi.exec.customer_report
    type: report
    owner: analytics
    criticality: high
jobs:
  - name: stage_customers
    transform: direct
    inputs: [landing.raw.customers_csv]
    outputs: [wh.stg.customers]
    columns:
      - from: landing.raw.customers_csv#email
        to: wh.stg.customers#email
  - name: publish
    transform: aggregate
    inputs: [wh.stg.customers]
    outputs: [bi.exec.customer_report]
`

type fixture struct {
	server  *Server
	engine  *engine.Engine
	metrics *metrics.Metrics
	landing string
	sources []config.Source
}

func setupServer(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	landing := filepath.Join(dir, "landing")
	testutil.WriteFiles(t, landing, map[string]string{
		"raw/customers.csv": "customer_id,email,country\n1,ann@example.com,US\n2,bob@example.com,DE\n",
	})
	pipelines := filepath.Join(dir, "pipelines.yaml")
	require.NoError(t, os.WriteFile(pipelines, []byte(testPipelines), 0o600))

	m := metrics.New()
	e, err := engine.New(engine.Config{
		StatePath:     state.MemoryPath,
		PipelinesPath: pipelines,
		Metrics:       m,
		Logger:        testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	sources := []config.Source{{Name: "landing", Type: config.SourceFiles, Path: landing}}
	_, err = e.Collect(ctx, sources)
	require.NoError(t, err)
	_, err = e.LoadPipelines(ctx, "")
	require.NoError(t, err)

	_, err = e.Glossary().Add(glossary.Term{Name: "Customer", Definition: "A person who buys", Synonyms: []string{"client"}})
	require.NoError(t, err)

	s := New(Config{Engine: e, Sources: sources, Metrics: m, Logger: testutil.NewTestLogger(t), Debounce: 50 * time.Millisecond})
	return &fixture{server: s, engine: e, metrics: m, landing: landing, sources: sources}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	f := setupServer(t)
	h := f.server.Handler()

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   []string
	}{
		{name: "health", target: "/healthz", wantStatus: http.StatusOK, wantBody: []string{"ok"}},
		{name: "list assets", target: "/api/assets", wantStatus: http.StatusOK, wantBody: []string{"landing.raw.customers_csv", "wh.stg.customers", "bi.exec.customer_report"}},
		{name: "filter by type", target: "/api/assets?type=report", wantStatus: http.StatusOK, wantBody: []string{"bi.exec.customer_report"}},
		{name: "filter pii", target: "/api/assets?pii=true", wantStatus: http.StatusOK, wantBody: []string{"landing.raw.customers_csv"}},
		{name: "bad type", target: "/api/assets?type=cube", wantStatus: http.StatusBadRequest, wantBody: []string{"unknown asset type"}},
		{name: "bad pii flag", target: "/api/assets?pii=maybe", wantStatus: http.StatusBadRequest},
		{name: "get asset", target: "/api/assets/landing.raw.customers_csv", wantStatus: http.StatusOK, wantBody: []string{`"row_count": 2`, `"email"`}},
		{name: "missing asset", target: "/api/assets/landing.raw.nope", wantStatus: http.StatusNotFound, wantBody: []string{"not found"}},
		{name: "search columns", target: "/api/columns?q=email", wantStatus: http.StatusOK, wantBody: []string{"landing.raw.customers_csv"}},
		{name: "search columns needs q", target: "/api/columns", wantStatus: http.StatusBadRequest},
		{name: "downstream lineage", target: "/api/lineage/landing.raw.customers_csv?direction=down", wantStatus: http.StatusOK, wantBody: []string{"wh.stg.customers", "bi.exec.customer_report", "stage_customers"}},
		{name: "column lineage", target: "/api/lineage/landing.raw.customers_csv%23email", wantStatus: http.StatusOK, wantBody: []string{`"column": "email"`, "wh.stg.customers"}},
		{name: "column lineage by param", target: "/api/lineage/wh.stg.customers?column=email&direction=up", wantStatus: http.StatusOK, wantBody: []string{"landing.raw.customers_csv"}},
		{name: "bad direction", target: "/api/lineage/wh.stg.customers?direction=sideways", wantStatus: http.StatusBadRequest},
		{name: "lineage of unknown asset", target: "/api/lineage/x.y.z", wantStatus: http.StatusNotFound},
		{name: "impact", target: "/api/impact/landing.raw.customers_csv?change=drop_asset", wantStatus: http.StatusOK, wantBody: []string{`"severity"`, "bi.exec.customer_report"}},
		{name: "column impact", target: "/api/impact/landing.raw.customers_csv?column=email", wantStatus: http.StatusOK, wantBody: []string{"drop_column", "wh.stg.customers"}},
		{name: "impact bad change", target: "/api/impact/landing.raw.customers_csv?change=explode", wantStatus: http.StatusBadRequest},
		{name: "impact needs column", target: "/api/impact/landing.raw.customers_csv?change=rename_column", wantStatus: http.StatusBadRequest},
		{name: "glossary", target: "/api/glossary", wantStatus: http.StatusOK, wantBody: []string{"Customer"}},
		{name: "glossary search", target: "/api/glossary?q=client", wantStatus: http.StatusOK, wantBody: []string{"A person who buys"}},
		{name: "graph", target: "/api/graph", wantStatus: http.StatusOK, wantBody: []string{`"nodes"`, `"edges"`}},
		{name: "focused graph", target: "/api/graph?focus=wh.stg.customers&depth=1&columns=true", wantStatus: http.StatusOK, wantBody: []string{`"focus": "wh.stg.customers"`, `"column_edges"`}},
		{name: "graph unknown focus", target: "/api/graph?focus=a.b.c", wantStatus: http.StatusNotFound},
		{name: "runs", target: "/api/runs", wantStatus: http.StatusOK, wantBody: []string{`"status": "completed"`}},
		{name: "graph page", target: "/", wantStatus: http.StatusOK, wantBody: []string{"<svg", "wh.stg.customers", "/events"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			for _, want := range tt.wantBody {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestAssetsJSON(t *testing.T) {
	f := setupServer(t)
	rec := get(t, f.server.Handler(), "/api/assets?source=landing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var assets []core.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, []string{"wh.stg.customers"}, assets[0].Lineage.Downstream)

	rec = get(t, f.server.Handler(), "/api/assets?q=nothing-matches")
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestImpactJSON(t *testing.T) {
	f := setupServer(t)
	rec := get(t, f.server.Handler(), "/api/impact/landing.raw.customers_csv?change=drop_asset")
	require.Equal(t, http.StatusOK, rec.Code)

	var rep impact.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Len(t, rep.Affected, 2)
	assert.Equal(t, []string{"bi.exec.customer_report"}, rep.Reports)
	assert.Contains(t, rep.Owners, "analytics")
}

func TestCollectEndpoint(t *testing.T) {
	f := setupServer(t)
	ch := f.server.Notifier().Subscribe()
	defer f.server.Notifier().Unsubscribe(ch)

	req := httptest.NewRequest(http.MethodPost, "/api/collect", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run state.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, state.RunStatusCompleted, run.Status)

	select {
	case ev := <-ch:
		assert.Equal(t, notifier.KindCollected, ev.Kind)
		assert.Equal(t, run.ID, ev.RunID)
	case <-time.After(time.Second):
		t.Fatal("no catalog event after collection")
	}

	t.Run("no sources", func(t *testing.T) {
		s := New(Config{Engine: f.engine})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/collect", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsRoute(t *testing.T) {
	f := setupServer(t)
	h := f.server.Handler()
	get(t, h, "/api/assets")
	get(t, h, "/api/assets/landing.raw.nope")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `leapmeta_http_requests_total{code="200",route="/api/assets"} 1`)
	assert.Contains(t, body, `leapmeta_http_requests_total{code="404",route="/api/assets/{id}"} 1`)
	assert.Contains(t, body, "leapmeta_collection_runs_total")
}

func TestEvents(t *testing.T) {
	f := setupServer(t)
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	f.server.Notifier().Broadcast(notifier.Event{Kind: notifier.KindLineage, RunID: "r-1"})

	var lines []string
	for len(lines) < 2 {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	assert.Equal(t, "event: catalog", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
	assert.Contains(t, lines[1], `"run_id":"r-1"`)
}

func TestWatchSources(t *testing.T) {
	f := setupServer(t)
	f.server.watch = true

	ch := f.server.Notifier().Subscribe()
	defer f.server.Notifier().Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.watchSources(ctx) }()

	// Give the watcher time to register the directories.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(f.landing, "raw", "orders.csv"), []byte("order_id,amount\n1,9.5\n"), 0o600))

	select {
	case ev := <-ch:
		assert.Equal(t, notifier.KindCollected, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not re-collect")
	}

	_, err := f.engine.Store().GetAsset(context.Background(), "landing.raw.orders_csv")
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchSources_NoFileSources(t *testing.T) {
	s := New(Config{Sources: []config.Source{{Name: "wh", Type: config.SourcePostgres, DSN: "postgres://x"}}})
	require.NoError(t, s.watchSources(context.Background()))
}

func TestSourceFor(t *testing.T) {
	roots := map[string]config.Source{
		"/data":       {Name: "data"},
		"/data/inner": {Name: "inner"},
	}
	src, ok := sourceFor(roots, "/data/inner/a.csv")
	require.True(t, ok)
	assert.Equal(t, "inner", src.Name)

	src, ok = sourceFor(roots, "/data/b.csv")
	require.True(t, ok)
	assert.Equal(t, "data", src.Name)

	_, ok = sourceFor(roots, "/elsewhere/c.csv")
	assert.False(t, ok)
}

func TestServeListener(t *testing.T) {
	f := setupServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok\n", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
