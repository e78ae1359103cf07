package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusLoading     RunStatus = "loading"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusScoring     RunStatus = "scoring"
	RunStatusSummarizing RunStatus = "summarizing"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run represents a single scoring run over the master district layer.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a scoring run.
type RunResult struct {
	Districts    int    `json:"districts"`
	Complete     int    `json:"complete"`
	Incomplete   int    `json:"incomplete"`
	Repaired     int    `json:"repaired"`
	Unrepairable int    `json:"unrepairable"`
	DeadLetters  int    `json:"dead_letters"`
	Error        string `json:"error,omitempty"`
}
