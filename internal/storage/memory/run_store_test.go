package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	id := uuid.New()
	start := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.UpsertRunStart(ctx, id, "matches", start))
	require.NoError(t, s.AddMatchesSaved(ctx, id, 3))
	require.NoError(t, s.UpsertRouteStats(ctx, id, "match", 4, "2xx", start.Add(time.Second)))
	require.NoError(t, s.UpsertRouteStats(ctx, id, "match", 1, "4xx", start.Add(2*time.Second)))
	msg := "boom"
	require.NoError(t, s.CompleteRun(ctx, id, start.Add(time.Minute), store.RunError, &msg))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "matches", run.Cycle)
	require.Equal(t, store.RunError, run.Status)
	require.Equal(t, int64(3), run.MatchesSaved)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, "boom", *run.ErrorMessage)

	routes, err := s.ListRunRoutes(ctx, id)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, int64(5), routes[0].Requests)
	require.Equal(t, int64(4), routes[0].Fetch2xx)
	require.Equal(t, int64(1), routes[0].Fetch4xx)
	require.Equal(t, start.Add(2*time.Second), routes[0].LastUpdate)
}

func TestRunStoreMissingRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	_, err := s.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(ctx, uuid.New(), time.Now(), store.RunSuccess, nil), store.ErrNotFound)
}

func TestRunStoreListFiltersAndPages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Unix(1_700_000_000, 0).UTC()
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, s.UpsertRunStart(ctx, ids[i], "users", base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, s.CompleteRun(ctx, ids[0], base.Add(time.Hour), store.RunSuccess, nil))

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].ID)

	running := store.RunRunning
	filtered, err := s.ListRuns(ctx, &running, 1, 1)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, ids[1], filtered[0].ID)

	empty, err := s.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}
