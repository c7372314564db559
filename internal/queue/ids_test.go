package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/queue"
	"github.com/JakeFAU/aram-crawler/internal/queue/memory"
)

func TestNamesFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, queue.DefaultUserNames, queue.NamesFor("user_id"))
	require.Equal(t, queue.DefaultMatchNames, queue.NamesFor("match_id"))
	require.Equal(t, "user_id_set:ttl:abc", queue.DefaultUserNames.MarkerKey("abc"))
	require.Equal(t, "match_id_set:ttl:*", queue.DefaultMatchNames.MarkerPattern())
}

func TestStatsStale(t *testing.T) {
	t.Parallel()

	require.True(t, queue.Stats{QueueSize: 0, SetSize: 2}.Stale())
	require.False(t, queue.Stats{QueueSize: 1, SetSize: 2}.Stale())
	require.False(t, queue.Stats{}.Stale())
}

func TestMatchIDsAreDedupedPermanently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(0, 0)
	matches := queue.NewMatchIDs(memory.NewQueue(memory.WithClock(func() time.Time { return now })))

	added, err := matches.Add(ctx, "KR_1")
	require.NoError(t, err)
	require.True(t, added)
	now = now.Add(48 * time.Hour)
	added, err = matches.Add(ctx, "KR_1")
	require.NoError(t, err)
	require.False(t, added)

	stats, err := matches.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, queue.Stats{QueueSize: 1, SetSize: 1}, stats)

	stale, err := queue.IsStale(ctx, memory.NewQueue())
	require.NoError(t, err)
	require.False(t, stale)
}

func TestUserIDsRediscoveryAfterTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Unix(0, 0)
	users := queue.NewUserIDs(memory.NewQueue(memory.WithClock(func() time.Time { return now })))

	added, err := users.Add(ctx, "p1", queue.UserRediscoveryTTL)
	require.NoError(t, err)
	require.True(t, added)
	added, err = users.Add(ctx, "p1", queue.UserRediscoveryTTL)
	require.NoError(t, err)
	require.False(t, added)

	now = now.Add(queue.UserRediscoveryTTL + time.Second)
	added, err = users.Add(ctx, "p1", queue.UserRediscoveryTTL)
	require.NoError(t, err)
	require.True(t, added)

	require.NoError(t, users.Clear(ctx))
	_, ok, err := users.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
