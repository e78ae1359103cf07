package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestEdges(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"e0", "e1", "e2", "e3", "e4", "e5"}).
		AddRow(10.0, 20.0, 30.0, 40.0, 50.0, 60.0)
	mock.ExpectQuery(`SELECT e0, e1, e2, e3, e4, e5 FROM bin_edges`).
		WithArgs("heat").
		WillReturnRows(rows)

	edges, err := s.LatestEdges(context.Background(), model.HazardHeat)
	require.NoError(t, err)
	assert.Equal(t, model.BinEdges{10, 20, 30, 40, 50, 60}, edges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestEdges_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT e0, e1, e2, e3, e4, e5 FROM bin_edges`).
		WithArgs("slr").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LatestEdges(context.Background(), model.HazardSeaLevelRise)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("scoring", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusScoring)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveScores_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"score_records"}, scoreColumns).WillReturnResult(2)

	records := []model.ScoreRecord{
		{DistrictID: "D1", Hazard: model.HazardHeat, Period: model.PeriodProjected, RawValue: 33.5, Score: 4},
		{DistrictID: "D2", Hazard: model.HazardHeat, Period: model.PeriodProjected, Absent: true},
	}
	require.NoError(t, s.SaveScores(context.Background(), "run-1", records))
	assert.NoError(t, mock.ExpectationsWereMet())
}
