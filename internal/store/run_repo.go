package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the cycle_runs status column.
type RunStatus string

// Run statuses persisted in cycle_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one invocation of a crawl cycle.
type Run struct {
	ID           uuid.UUID  `json:"id"`
	Cycle        string     `json:"cycle"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	MatchesSaved int64      `json:"matches_saved"`
}

// RouteStats aggregates upstream requests for one run and route.
type RouteStats struct {
	RunID      uuid.UUID `json:"run_id"`
	Route      string    `json:"route"`
	LastUpdate time.Time `json:"last_update"`
	Requests   int64     `json:"requests"`
	Fetch2xx   int64     `json:"fetch_2xx"`
	Fetch4xx   int64     `json:"fetch_4xx"`
	Fetch5xx   int64     `json:"fetch_5xx"`
	FetchOther int64     `json:"fetch_other"`
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) a running record.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, cycle string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// AddMatchesSaved increments the saved-match counter.
	AddMatchesSaved(ctx context.Context, runID uuid.UUID, delta int64) error
	// UpsertRouteStats applies request deltas per (run, route, statusClass).
	UpsertRouteStats(ctx context.Context, runID uuid.UUID, route string, delta int64, statusClass string, at time.Time) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset, newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunRoutes returns aggregated route stats for one run.
	ListRunRoutes(ctx context.Context, runID uuid.UUID) ([]RouteStats, error)
}
