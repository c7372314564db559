package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/queue"
	"github.com/JakeFAU/aram-crawler/internal/queue/queuetest"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := New(client, queue.DefaultUserNames)
	require.NoError(t, err)
	return q, mr, client
}

func TestQueueContract(t *testing.T) {
	t.Parallel()

	queuetest.Run(t, func(t *testing.T) (queue.Dedup, func(time.Duration)) {
		q, mr, _ := newTestQueue(t)
		return q, mr.FastForward
	})
}

func TestQueueKeyLayout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, mr, _ := newTestQueue(t)

	added, err := q.Add(ctx, "puuid-1", time.Hour)
	require.NoError(t, err)
	require.True(t, added)

	require.True(t, mr.Exists("user_id_set:ttl:puuid-1"))
	members, err := mr.Members("user_id_set")
	require.NoError(t, err)
	require.Equal(t, []string{"puuid-1"}, members)
	list, err := mr.List("user_id_queue")
	require.NoError(t, err)
	require.Equal(t, []string{"puuid-1"}, list)

	item, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "puuid-1", item)
	require.False(t, mr.Exists("user_id_set:ttl:puuid-1"))
}

func TestQueueFIFOAcrossPushSides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, mr, _ := newTestQueue(t)
	for _, id := range []string{"first", "second"} {
		_, err := q.Add(ctx, id, 0)
		require.NoError(t, err)
	}
	// New items go to the head; the tail holds the oldest.
	list, err := mr.List("user_id_queue")
	require.NoError(t, err)
	require.Equal(t, []string{"second", "first"}, list)
}

func TestQueueClearRemovesManyMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, mr, _ := newTestQueue(t)
	for i := 0; i < scanBatch+20; i++ {
		_, err := q.Add(ctx, fmt.Sprintf("id-%d", i), time.Hour)
		require.NoError(t, err)
	}
	mr.Set("unrelated", "keep")

	require.NoError(t, q.Clear(ctx))
	require.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestQueueErrorsWhenServerDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, mr, _ := newTestQueue(t)
	mr.Close()

	_, err := q.Add(ctx, "x", 0)
	require.Error(t, err)
	_, _, err = q.Get(ctx)
	require.Error(t, err)
	_, err = q.QueueSize(ctx)
	require.Error(t, err)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, queue.DefaultMatchNames)
	require.Error(t, err)

	_, _, client := newTestQueue(t)
	_, err = New(client, queue.Names{})
	require.Error(t, err)
}

func TestGetReleasesMarkerForReAdd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, mr, _ := newTestQueue(t)

	_, err := q.Add(ctx, "puuid-2", time.Hour)
	require.NoError(t, err)
	_, ok, err := q.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The popped item's marker and expiring-set entry are gone, so a fresh
	// discovery queues it again before the TTL would have elapsed.
	require.False(t, mr.Exists("user_id_set:ttl:puuid-2"))
	added, err := q.Add(ctx, "puuid-2", time.Hour)
	require.NoError(t, err)
	require.True(t, added)
	size, err := q.QueueSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)
}
