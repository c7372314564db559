package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/aram-crawler/internal/store"
)

// RunStore implements store.RunRepository on the cycle_runs and
// cycle_route_stats tables.
type RunStore struct {
	db querier
}

// NewRunStore wraps an existing pool.
func NewRunStore(db querier) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{db: db}, nil
}

// UpsertRunStart inserts a running record, leaving an existing one untouched.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, cycle string, startedAt time.Time) error {
	const query = `
		INSERT INTO cycle_runs (id, cycle, started_at, status, matches_saved)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, runID.String(), cycle, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	const query = `
		UPDATE cycle_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	tag, err := s.db.Exec(ctx, query, finishedAt, string(status), errMsg, runID.String())
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddMatchesSaved increments the saved counter.
func (s *RunStore) AddMatchesSaved(ctx context.Context, runID uuid.UUID, delta int64) error {
	const query = `UPDATE cycle_runs SET matches_saved = matches_saved + $1 WHERE id = $2;`
	if _, err := s.db.Exec(ctx, query, delta, runID.String()); err != nil {
		return fmt.Errorf("add matches saved: %w", err)
	}
	return nil
}

// UpsertRouteStats folds request deltas into the per-route aggregate.
func (s *RunStore) UpsertRouteStats(
	ctx context.Context,
	runID uuid.UUID,
	route string,
	delta int64,
	statusClass string,
	at time.Time,
) error {
	var f2xx, f4xx, f5xx, other int64
	switch statusClass {
	case "2xx":
		f2xx = delta
	case "4xx":
		f4xx = delta
	case "5xx":
		f5xx = delta
	default:
		other = delta
	}
	const query = `
		INSERT INTO cycle_route_stats (run_id, route, last_update, requests, fetch_2xx, fetch_4xx, fetch_5xx, fetch_other)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, route) DO UPDATE SET
			requests = cycle_route_stats.requests + EXCLUDED.requests,
			fetch_2xx = cycle_route_stats.fetch_2xx + EXCLUDED.fetch_2xx,
			fetch_4xx = cycle_route_stats.fetch_4xx + EXCLUDED.fetch_4xx,
			fetch_5xx = cycle_route_stats.fetch_5xx + EXCLUDED.fetch_5xx,
			fetch_other = cycle_route_stats.fetch_other + EXCLUDED.fetch_other,
			last_update = GREATEST(cycle_route_stats.last_update, EXCLUDED.last_update);
	`
	if _, err := s.db.Exec(ctx, query, runID.String(), route, at, delta, f2xx, f4xx, f5xx, other); err != nil {
		return fmt.Errorf("upsert route stats: %w", err)
	}
	return nil
}

const runColumns = `id::text, cycle, started_at, finished_at, status, error_message, matches_saved`

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM cycle_runs WHERE id = $1;`
	run, err := scanRun(s.db.QueryRow(ctx, query, runID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	query := `SELECT ` + runColumns + ` FROM cycle_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.db.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunRoutes returns the per-route aggregates of one run.
func (s *RunStore) ListRunRoutes(ctx context.Context, runID uuid.UUID) ([]store.RouteStats, error) {
	const query = `
		SELECT route, last_update, requests, fetch_2xx, fetch_4xx, fetch_5xx, fetch_other
		FROM cycle_route_stats
		WHERE run_id = $1
		ORDER BY route;
	`
	rows, err := s.db.Query(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list run routes: %w", err)
	}
	defer rows.Close()

	stats := []store.RouteStats{}
	for rows.Next() {
		stat := store.RouteStats{RunID: runID}
		if err := rows.Scan(
			&stat.Route,
			&stat.LastUpdate,
			&stat.Requests,
			&stat.Fetch2xx,
			&stat.Fetch4xx,
			&stat.Fetch5xx,
			&stat.FetchOther,
		); err != nil {
			return nil, fmt.Errorf("scan route stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate route stats: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		id     string
		status string
	)
	if err := row.Scan(
		&id,
		&run.Cycle,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
		&run.MatchesSaved,
	); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = parsed
	run.Status = store.RunStatus(status)
	return run, nil
}
