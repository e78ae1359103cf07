package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusScoring))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusScoring, got.Status)

	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunResult{Districts: 42, Complete: 40, Incomplete: 2}))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 42, got.Result.Districts)
	assert.Equal(t, 2, got.Result.Incomplete)
}

func TestSQLite_CompleteRunWithErrorMarksFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunResult{Error: "zero-area geometry for district D9"}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListRunsFiltersByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, r1.ID, model.RunStatusFailed))

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, r1.ID, failed[0].ID)

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Bin edges ---

func TestSQLite_SaveAndLatestEdges(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	edges := model.BinEdges{10, 20, 30, 40, 50, 60}
	require.NoError(t, st.SaveEdges(ctx, run.ID, model.HazardHeat, edges))

	got, err := st.LatestEdges(ctx, model.HazardHeat)
	require.NoError(t, err)
	assert.Equal(t, edges, got)
}

func TestSQLite_LatestEdgesPrefersNewestFit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r1, err := st.CreateRun(ctx)
	require.NoError(t, err)
	r2, err := st.CreateRun(ctx)
	require.NoError(t, err)

	require.NoError(t, st.SaveEdges(ctx, r1.ID, model.HazardPrecip, model.BinEdges{0, 1, 2, 3, 4, 5}))
	require.NoError(t, st.SaveEdges(ctx, r2.ID, model.HazardPrecip, model.BinEdges{5, 6, 7, 8, 9, 10}))

	got, err := st.LatestEdges(ctx, model.HazardPrecip)
	require.NoError(t, err)
	assert.Equal(t, model.BinEdges{5, 6, 7, 8, 9, 10}, got)
}

func TestSQLite_LatestEdgesNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LatestEdges(context.Background(), model.HazardSeaLevelRise)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Score records ---

func TestSQLite_ScoresRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	records := []model.ScoreRecord{
		{DistrictID: "D1", Hazard: model.HazardHeat, Period: model.PeriodProjected, RawValue: 33.5, Score: 4},
		{DistrictID: "D1", Hazard: model.HazardHeat, Period: model.PeriodHistorical, RawValue: 12.0, Score: 1},
		{DistrictID: "D2", Hazard: model.HazardFlood, Period: model.PeriodProjected, Absent: true},
	}
	require.NoError(t, st.SaveScores(ctx, run.ID, records))

	got, err := st.ScoresForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 33.5, got[1].RawValue)
	assert.Equal(t, 4, got[1].Score)
	assert.True(t, got[2].Absent)
	assert.Equal(t, model.HazardFlood, got[2].Hazard)
}

// --- Summaries ---

func TestSQLite_SummariesRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	records := []model.HazardSummaryRecord{
		{
			DistrictID:  "D1",
			Name:        "Bayview Unified",
			County:      "Marin",
			Type:        model.DistrictUnified,
			Enrollment:  4200,
			HazardScore: 17,
			Projected: map[model.Hazard]model.HazardOutcome{
				model.HazardHeat: {Raw: 33.5, Score: 4},
			},
			Complete: true,
		},
	}
	require.NoError(t, st.SaveSummaries(ctx, run.ID, records))

	got, err := st.SummariesForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bayview Unified", got[0].Name)
	assert.Equal(t, 17, got[0].HazardScore)
	assert.Equal(t, 4, got[0].Projected[model.HazardHeat].Score)
	assert.True(t, got[0].Complete)
}
