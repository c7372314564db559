package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/aram-crawler/internal/store"
)

// RunStore keeps cycle runs in memory for development and tests.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]store.Run
	routes map[uuid.UUID]map[string]store.RouteStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:   make(map[uuid.UUID]store.Run),
		routes: make(map[uuid.UUID]map[string]store.RouteStats),
	}
}

// UpsertRunStart implements store.RunRepository.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, cycle string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = store.Run{ID: runID, Cycle: cycle, StartedAt: startedAt}
	}
	run.Status = store.RunRunning
	s.runs[runID] = run
	return nil
}

// CompleteRun implements store.RunRepository.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = &finishedAt
	run.Status = status
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// AddMatchesSaved implements store.RunRepository.
func (s *RunStore) AddMatchesSaved(_ context.Context, runID uuid.UUID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.MatchesSaved += delta
	s.runs[runID] = run
	return nil
}

// UpsertRouteStats implements store.RunRepository.
func (s *RunStore) UpsertRouteStats(
	_ context.Context,
	runID uuid.UUID,
	route string,
	delta int64,
	statusClass string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRoute, ok := s.routes[runID]
	if !ok {
		byRoute = make(map[string]store.RouteStats)
		s.routes[runID] = byRoute
	}
	stats := byRoute[route]
	stats.RunID = runID
	stats.Route = route
	stats.Requests += delta
	switch statusClass {
	case "2xx":
		stats.Fetch2xx += delta
	case "4xx":
		stats.Fetch4xx += delta
	case "5xx":
		stats.Fetch5xx += delta
	default:
		stats.FetchOther += delta
	}
	if at.After(stats.LastUpdate) {
		stats.LastUpdate = at
	}
	byRoute[route] = stats
	return nil
}

// GetRun implements store.RunRepository.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns implements store.RunRepository.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// ListRunRoutes implements store.RunRepository.
func (s *RunStore) ListRunRoutes(_ context.Context, runID uuid.UUID) ([]store.RouteStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRoute := s.routes[runID]
	out := make([]store.RouteStats, 0, len(byRoute))
	for _, stats := range byRoute {
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out, nil
}
