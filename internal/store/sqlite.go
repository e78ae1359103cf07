package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS bin_edges (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	hazard    TEXT NOT NULL,
	e0        REAL NOT NULL,
	e1        REAL NOT NULL,
	e2        REAL NOT NULL,
	e3        REAL NOT NULL,
	e4        REAL NOT NULL,
	e5        REAL NOT NULL,
	fitted_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, hazard)
);

CREATE TABLE IF NOT EXISTS score_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	district_id TEXT NOT NULL,
	hazard      TEXT NOT NULL,
	period      TEXT NOT NULL,
	raw_value   REAL NOT NULL,
	score       INTEGER NOT NULL,
	absent      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, district_id, hazard, period)
);

CREATE TABLE IF NOT EXISTS summary_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	district_id TEXT NOT NULL,
	payload     TEXT NOT NULL,
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
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_bin_edges_hazard ON bin_edges(hazard, fitted_at);
CREATE INDEX IF NOT EXISTS idx_score_records_district ON score_records(district_id);
CREATE INDEX IF NOT EXISTS idx_fetch_dlq_next_retry ON fetch_dlq(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	status := model.RunStatusComplete
	if result != nil && result.Error != "" {
		status = model.RunStatusFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveEdges(ctx context.Context, runID string, hazard model.Hazard, edges model.BinEdges) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bin_edges (run_id, hazard, e0, e1, e2, e3, e4, e5, fitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, hazard) DO UPDATE SET
		   e0=excluded.e0, e1=excluded.e1, e2=excluded.e2,
		   e3=excluded.e3, e4=excluded.e4, e5=excluded.e5,
		   fitted_at=excluded.fitted_at`,
		runID, string(hazard), edges[0], edges[1], edges[2], edges[3], edges[4], edges[5], time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save edges for %s", hazard)
}

func (s *SQLiteStore) LatestEdges(ctx context.Context, hazard model.Hazard) (model.BinEdges, error) {
	var e model.BinEdges
	row := s.db.QueryRowContext(ctx,
		`SELECT e0, e1, e2, e3, e4, e5 FROM bin_edges
		 WHERE hazard = ? ORDER BY fitted_at DESC LIMIT 1`,
		string(hazard),
	)
	err := row.Scan(&e[0], &e[1], &e[2], &e[3], &e[4], &e[5])
	if err == sql.ErrNoRows {
		return e, eris.Wrapf(ErrNotFound, "sqlite: edges for %s", hazard)
	}
	if err != nil {
		return e, eris.Wrapf(err, "sqlite: latest edges for %s", hazard)
	}
	return e, nil
}

func (s *SQLiteStore) SaveScores(ctx context.Context, runID string, records []model.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save scores")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO score_records (run_id, district_id, hazard, period, raw_value, score, absent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save scores")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			runID, r.DistrictID, string(r.Hazard), string(r.Period), r.RawValue, r.Score, boolToInt(r.Absent),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert score %s/%s", r.DistrictID, r.Hazard)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save scores")
}

func (s *SQLiteStore) ScoresForRun(ctx context.Context, runID string) ([]model.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT district_id, hazard, period, raw_value, score, absent FROM score_records
		 WHERE run_id = ? ORDER BY district_id, hazard, period`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scores for run %s", runID)
	}
	defer rows.Close()

	var records []model.ScoreRecord
	for rows.Next() {
		var r model.ScoreRecord
		var absent int
		if err := rows.Scan(&r.DistrictID, &r.Hazard, &r.Period, &r.RawValue, &r.Score, &absent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score record")
		}
		r.Absent = absent != 0
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: scores iterate")
}

func (s *SQLiteStore) SaveSummaries(ctx context.Context, runID string, records []model.HazardSummaryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save summaries")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO summary_records (run_id, district_id, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save summaries")
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal summary %s", r.DistrictID)
		}
		if _, err := stmt.ExecContext(ctx, runID, r.DistrictID, string(payload)); err != nil {
			return eris.Wrapf(err, "sqlite: insert summary %s", r.DistrictID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save summaries")
}

func (s *SQLiteStore) SummariesForRun(ctx context.Context, runID string) ([]model.HazardSummaryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM summary_records WHERE run_id = ? ORDER BY district_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: summaries for run %s", runID)
	}
	defer rows.Close()

	var records []model.HazardSummaryRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		var r model.HazardSummaryRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: summaries iterate")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO fetch_dlq
		 (id, district_id, hazard, period, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DistrictID, string(entry.Hazard), string(entry.Period),
		entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT id, district_id, hazard, period, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM fetch_dlq WHERE next_retry_at <= datetime('now')`
	var args []any

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var entries []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		if err := rows.Scan(&e.ID, &e.DistrictID, &e.Hazard, &e.Period, &e.Error, &e.ErrorType,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: dlq iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
