package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/progress"
	"github.com/JakeFAU/aram-crawler/internal/storage/memory"
	"github.com/JakeFAU/aram-crawler/internal/store"
)

func TestStoreSinkPersistsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewRunStore()
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Unix(1_700_000_000, 0).UTC()

	fetch := func(offset time.Duration, class progress.StatusClass) progress.Event {
		return progress.Event{
			RunID:       runID,
			TS:          now.Add(offset),
			Stage:       progress.StageFetchDone,
			Route:       "match",
			StatusClass: class,
		}
	}
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageCycleStart, Cycle: "matches"},
		fetch(time.Second, progress.Status2xx),
		fetch(2*time.Second, progress.Status2xx),
		fetch(3*time.Second, progress.Status4xx),
		{TS: now, Stage: progress.StageFetchDone, Route: "match", StatusClass: progress.Status2xx},
		{RunID: runID, TS: now.Add(4 * time.Second), Stage: progress.StageMatchSaved, Count: 1},
		{RunID: runID, TS: now.Add(5 * time.Second), Stage: progress.StageCycleDone, Cycle: "matches"},
	}

	require.NoError(t, sink.Consume(ctx, batch))

	run, err := repo.GetRun(ctx, runUUID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, int64(1), run.MatchesSaved)

	routes, err := repo.ListRunRoutes(ctx, runUUID)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, int64(3), routes[0].Requests)
	require.Equal(t, int64(2), routes[0].Fetch2xx)
	require.Equal(t, int64(1), routes[0].Fetch4xx)
}

func TestStoreSinkRecordsErrorNote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewRunStore()
	sink := NewStoreSink(repo, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageCycleStart, Cycle: "users"},
		{RunID: runID, TS: now, Stage: progress.StageCycleError, Cycle: "users", Note: "redis down"},
	}))

	run, err := repo.GetRun(ctx, runUUID)
	require.NoError(t, err)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, "redis down", *run.ErrorMessage)
}

func TestStoreSinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingRepo{}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageCycleStart, Cycle: "users", TS: time.Now()},
	})
	require.Error(t, err)
}

type failingRepo struct {
	store.RunRepository
}

func (failingRepo) UpsertRunStart(context.Context, uuid.UUID, string, time.Time) error {
	return errors.New("unavailable")
}
