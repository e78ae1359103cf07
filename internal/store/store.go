// Package store persists scoring runs, fitted bin edges, per-district
// scores, and hazard summaries.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/seamark-analytics/climrisk/internal/model"
	"github.com/seamark-analytics/climrisk/internal/resilience"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the scoring pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Bin edges. Edges are persisted per run and per hazard so that a
	// later historical pass reuses the exact projected-period fit
	// instead of refitting.
	SaveEdges(ctx context.Context, runID string, hazard model.Hazard, edges model.BinEdges) error
	LatestEdges(ctx context.Context, hazard model.Hazard) (model.BinEdges, error)

	// Score records
	SaveScores(ctx context.Context, runID string, records []model.ScoreRecord) error
	ScoresForRun(ctx context.Context, runID string) ([]model.ScoreRecord, error)

	// Summaries
	SaveSummaries(ctx context.Context, runID string, records []model.HazardSummaryRecord) error
	SummariesForRun(ctx context.Context, runID string) ([]model.HazardSummaryRecord, error)

	// Dead letter queue for failed climate retrievals
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
