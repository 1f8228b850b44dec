package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveRun("completed", 2*time.Second)
	m.ObserveRun("failed", time.Second)
	m.AddAssets("landing", 3)
	m.AddAssets("landing", 2)
	m.CollectorFailed("wh")
	m.AddStale(4)
	m.ObserveRequest("/api/assets", http.StatusOK)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("completed")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.AssetsCollected.WithLabelValues("landing")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CollectorErrors.WithLabelValues("wh")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.StaleAssets), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/assets", "200")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `leapmeta_assets_collected_total{source="landing"} 5`)
	assert.Contains(t, body, "leapmeta_collection_run_duration_seconds_count 2")
	assert.Contains(t, body, "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("completed", time.Second)
		m.AddAssets("x", 1)
		m.CollectorFailed("x")
		m.AddStale(1)
		m.ObserveRequest("/", 200)
	})
}
