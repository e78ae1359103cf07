package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/seamark-analytics/climrisk/internal/db"
	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for shared helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bin_edges (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	hazard    TEXT NOT NULL,
	e0        DOUBLE PRECISION NOT NULL,
	e1        DOUBLE PRECISION NOT NULL,
	e2        DOUBLE PRECISION NOT NULL,
	e3        DOUBLE PRECISION NOT NULL,
	e4        DOUBLE PRECISION NOT NULL,
	e5        DOUBLE PRECISION NOT NULL,
	fitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, hazard)
);

CREATE TABLE IF NOT EXISTS score_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	district_id TEXT NOT NULL,
	hazard      TEXT NOT NULL,
	period      TEXT NOT NULL,
	raw_value   DOUBLE PRECISION NOT NULL,
	score       INTEGER NOT NULL,
	absent      BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (run_id, district_id, hazard, period)
);

CREATE TABLE IF NOT EXISTS summary_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	district_id TEXT NOT NULL,
	payload     JSONB NOT NULL,
	PRIMARY KEY (run_id, district_id)
);

CREATE TABLE IF NOT EXISTS fetch_dlq (
	id             TEXT PRIMARY KEY,
	district_id    TEXT NOT NULL,
	hazard         TEXT NOT NULL,
	period         TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_bin_edges_hazard ON bin_edges(hazard, fitted_at);
CREATE INDEX IF NOT EXISTS idx_score_records_district ON score_records(district_id);
CREATE INDEX IF NOT EXISTS idx_fetch_dlq_next_retry ON fetch_dlq(next_retry_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	status := model.RunStatusComplete
	if result != nil && result.Error != "" {
		status = model.RunStatusFailed
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveEdges(ctx context.Context, runID string, hazard model.Hazard, edges model.BinEdges) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bin_edges (run_id, hazard, e0, e1, e2, e3, e4, e5, fitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (run_id, hazard) DO UPDATE SET
		   e0=EXCLUDED.e0, e1=EXCLUDED.e1, e2=EXCLUDED.e2,
		   e3=EXCLUDED.e3, e4=EXCLUDED.e4, e5=EXCLUDED.e5,
		   fitted_at=EXCLUDED.fitted_at`,
		runID, string(hazard), edges[0], edges[1], edges[2], edges[3], edges[4], edges[5], time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save edges for %s", hazard)
}

func (s *PostgresStore) LatestEdges(ctx context.Context, hazard model.Hazard) (model.BinEdges, error) {
	var e model.BinEdges
	err := s.pool.QueryRow(ctx,
		`SELECT e0, e1, e2, e3, e4, e5 FROM bin_edges
		 WHERE hazard = $1 ORDER BY fitted_at DESC LIMIT 1`,
		string(hazard),
	).Scan(&e[0], &e[1], &e[2], &e[3], &e[4], &e[5])
	if err == pgx.ErrNoRows {
		return e, eris.Wrapf(ErrNotFound, "edges for %s", hazard)
	}
	if err != nil {
		return e, eris.Wrapf(err, "postgres: latest edges for %s", hazard)
	}
	return e, nil
}

// scoreColumns is the column order used for bulk score inserts.
var scoreColumns = []string{"run_id", "district_id", "hazard", "period", "raw_value", "score", "absent"}

func (s *PostgresStore) SaveScores(ctx context.Context, runID string, records []model.ScoreRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{runID, r.DistrictID, string(r.Hazard), string(r.Period), r.RawValue, r.Score, r.Absent})
	}
	_, err := db.CopyFrom(ctx, s.pool, "score_records", scoreColumns, rows)
	return eris.Wrapf(err, "postgres: save scores for run %s", runID)
}

func (s *PostgresStore) ScoresForRun(ctx context.Context, runID string) ([]model.ScoreRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT district_id, hazard, period, raw_value, score, absent FROM score_records
		 WHERE run_id = $1 ORDER BY district_id, hazard, period`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scores for run %s", runID)
	}
	defer rows.Close()

	var records []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		if err := rows.Scan(&r.DistrictID, &r.Hazard, &r.Period, &r.RawValue, &r.Score, &r.Absent); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: scores iterate")
}

func (s *PostgresStore) SaveSummaries(ctx context.Context, runID string, records []model.HazardSummaryRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal summary %s", r.DistrictID)
		}
		rows = append(rows, []any{runID, r.DistrictID, payload})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "summary_records",
		Columns:      []string{"run_id", "district_id", "payload"},
		ConflictKeys: []string{"run_id", "district_id"},
	}, rows)
	return eris.Wrapf(err, "postgres: save summaries for run %s", runID)
}

func (s *PostgresStore) SummariesForRun(ctx context.Context, runID string) ([]model.HazardSummaryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM summary_records WHERE run_id = $1 ORDER BY district_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: summaries for run %s", runID)
	}
	defer rows.Close()

	var records []model.HazardSummaryRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		var r model.HazardSummaryRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: summaries iterate")
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_dlq
		 (id, district_id, hazard, period, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = EXCLUDED.error,
		   error_type = EXCLUDED.error_type,
		   retry_count = fetch_dlq.retry_count + 1,
		   next_retry_at = EXCLUDED.next_retry_at,
		   last_failed_at = EXCLUDED.last_failed_at`,
		entry.ID, entry.DistrictID, string(entry.Hazard), string(entry.Period),
		entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, district_id, hazard, period, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM fetch_dlq WHERE next_retry_at <= now()`
	var args []any

	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		query += ` AND error_type = $1`
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.DistrictID, &e.Hazard, &e.Period, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: dlq iterate")
}
