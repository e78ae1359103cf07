package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/store"
	"github.com/seamark-analytics/climrisk/internal/summary"
)

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return &pipelineEnv{Store: st}
}

func TestServeHealth(t *testing.T) {
	srv := httptest.NewServer(newRouter(context.Background(), newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeRunLookup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(ctx, env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/no-such-run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	run, err := env.Store.CreateRun(ctx)
	require.NoError(t, err)

	resp, err = http.Get(srv.URL + "/api/runs/" + run.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeLatestSummaryAndStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(ctx, env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no complete runs yet")

	run, err := env.Store.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, env.Store.SaveScores(ctx, run.ID, []model.ScoreRecord{
		{DistrictID: "D1", Hazard: model.HazardHeat, Period: model.PeriodProjected, RawValue: 33.5, Score: 4},
	}))
	require.NoError(t, env.Store.SaveSummaries(ctx, run.ID, []model.HazardSummaryRecord{
		{DistrictID: "D1", Name: "Bayview Unified", HazardScore: 11, Complete: true},
	}))
	require.NoError(t, env.Store.CompleteRun(ctx, run.ID, &model.RunResult{Districts: 1, Complete: 1}))

	var records []model.HazardSummaryRecord
	getJSON(t, srv.URL+"/api/summary", &records)
	require.Len(t, records, 1)
	assert.Equal(t, "D1", records[0].DistrictID)

	var rec model.HazardSummaryRecord
	getJSON(t, srv.URL+"/api/summary/D1", &rec)
	assert.Equal(t, 11, rec.HazardScore)

	resp, err = http.Get(srv.URL + "/api/summary/no-such-district")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var stats []summary.Stats
	getJSON(t, srv.URL+"/api/stats", &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, model.HazardHeat, stats[0].Hazard)
	assert.Equal(t, 1, stats[0].N)
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServeEdges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(ctx, env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/hazards/bogus/edges")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/hazards/heat/edges")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	run, err := env.Store.CreateRun(ctx)
	require.NoError(t, err)
	edges := model.BinEdges{10, 20, 30, 40, 50, 60}
	require.NoError(t, env.Store.SaveEdges(ctx, run.ID, model.HazardHeat, edges))

	resp, err = http.Get(srv.URL + "/api/hazards/heat/edges")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
