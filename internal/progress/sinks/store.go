package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/aram-crawler/internal/progress"
	"github.com/JakeFAU/aram-crawler/internal/store"
)

// StoreSink persists run progress via a store.RunRepository. Route counters
// and saved-match counts are collapsed per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies lifecycle events in order and flushes aggregated deltas
// before any completion so a finished run already carries its counters.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	agg := newDeltas()
	for _, evt := range batch {
		if !evt.HasRun() {
			continue
		}
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageCycleStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.Cycle, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageFetchDone:
			agg.addRoute(runID, evt)
		case progress.StageMatchSaved:
			agg.saved[runID] += evt.Count
		case progress.StageCycleDone, progress.StageCycleError:
			if err := s.flush(ctx, agg); err != nil {
				return err
			}
			agg = newDeltas()
			if err := s.complete(ctx, runID, evt); err != nil {
				return err
			}
		}
	}
	return s.flush(ctx, agg)
}

func (s *StoreSink) complete(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageCycleError {
		status = store.RunError
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, agg *deltas) error {
	for runID, n := range agg.saved {
		if n == 0 {
			continue
		}
		if err := s.repo.AddMatchesSaved(ctx, runID, n); err != nil {
			return fmt.Errorf("add matches saved: %w", err)
		}
	}
	for key, d := range agg.routes {
		if err := s.repo.UpsertRouteStats(ctx, key.runID, key.route, d.requests, key.statusClass, d.at); err != nil {
			return fmt.Errorf("upsert route stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type routeKey struct {
	runID       uuid.UUID
	route       string
	statusClass string
}

type routeDelta struct {
	requests int64
	at       time.Time
}

type deltas struct {
	routes map[routeKey]*routeDelta
	saved  map[uuid.UUID]int64
}

func newDeltas() *deltas {
	return &deltas{
		routes: make(map[routeKey]*routeDelta),
		saved:  make(map[uuid.UUID]int64),
	}
}

func (d *deltas) addRoute(runID uuid.UUID, evt progress.Event) {
	key := routeKey{runID: runID, route: evt.Route, statusClass: string(evt.StatusClass)}
	delta := d.routes[key]
	if delta == nil {
		delta = &routeDelta{}
		d.routes[key] = delta
	}
	delta.requests++
	if evt.TS.After(delta.at) {
		delta.at = evt.TS
	}
}
