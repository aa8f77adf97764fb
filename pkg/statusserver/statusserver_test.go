package statusserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdamache/memorybench/pkg/benchmark"
	"github.com/sdamache/memorybench/pkg/executor"
	"github.com/sdamache/memorybench/pkg/plan"
	"github.com/sdamache/memorybench/pkg/statusserver"
)

func testPlan() *plan.Plan {
	return &plan.Plan{
		RunID:       "run-1",
		Timestamp:   "2026-07-30T00:00:00Z",
		Concurrency: 2,
		Entries: []plan.Entry{
			{ProviderName: "alpha", BenchmarkName: "bravo", Eligible: true},
		},
		EligibleCount: 1,
		SkippedCount:  0,
	}
}

func TestServer_HealthzAndStatus(t *testing.T) {
	p := testPlan()
	progress := executor.NewProgress(p.RunID, p)
	progress.SetTotal("alpha", "bravo", 3)
	progress.RecordResult("alpha", "bravo", benchmark.StatusPass)

	reg := prometheus.NewRegistry()
	srv := statusserver.New("127.0.0.1:0", p, progress, reg)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var healthz map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&healthz))
	assert.Equal(t, "ok", healthz["status"])
	assert.Contains(t, healthz["version"], "memorybench/")

	statusResp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, float64(1), body["eligible_count"])

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestServer_ShutdownIsGraceful(t *testing.T) {
	p := testPlan()
	progress := executor.NewProgress(p.RunID, p)
	srv := statusserver.New("127.0.0.1:0", p, progress, nil)
	srv.Start()
	require.NoError(t, srv.Shutdown(context.Background()))
}
