// Package queuetest holds behavioral checks shared by every queue.Dedup backend.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aram-crawler/internal/queue"
)

// Factory builds a fresh, empty queue. advance moves the backend's notion of
// time forward so TTL markers can lapse without sleeping.
type Factory func(t *testing.T) (q queue.Dedup, advance func(time.Duration))

// Run exercises the dedup contract against the backend produced by newQueue.
func Run(t *testing.T, newQueue Factory) {
	t.Helper()

	t.Run("DuplicateRejectedUntilDequeued", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		added, err := q.Add(ctx, "x", 0)
		require.NoError(t, err)
		require.True(t, added)

		added, err = q.Add(ctx, "x", 0)
		require.NoError(t, err)
		require.False(t, added)

		item, ok, err := q.Get(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "x", item)

		added, err = q.Add(ctx, "x", 0)
		require.NoError(t, err)
		require.True(t, added)
	})

	t.Run("FIFOOrderAndSizes", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		for _, id := range []string{"a", "b", "c"} {
			added, err := q.Add(ctx, id, 0)
			require.NoError(t, err)
			require.True(t, added)
		}
		for i, want := range []string{"a", "b", "c"} {
			stats, err := queue.Snapshot(ctx, q)
			require.NoError(t, err)
			require.Equal(t, int64(3-i), stats.QueueSize)
			require.Equal(t, int64(3-i), stats.SetSize)

			got, ok, err := q.Get(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, want, got)
		}
		_, ok, err := q.Get(ctx)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("TTLClearedByGet", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		added, err := q.Add(ctx, "u", time.Hour)
		require.NoError(t, err)
		require.True(t, added)

		_, ok, err := q.Get(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		added, err = q.Add(ctx, "u", time.Hour)
		require.NoError(t, err)
		require.True(t, added)
	})

	t.Run("TTLBlocksUntilExpiry", func(t *testing.T) {
		ctx := context.Background()
		q, advance := newQueue(t)

		added, err := q.Add(ctx, "u", time.Hour)
		require.NoError(t, err)
		require.True(t, added)

		advance(30 * time.Minute)
		added, err = q.Add(ctx, "u", time.Hour)
		require.NoError(t, err)
		require.False(t, added)

		advance(31 * time.Minute)
		added, err = q.Add(ctx, "u", time.Hour)
		require.NoError(t, err)
		require.True(t, added)

		size, err := q.QueueSize(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), size)
	})

	t.Run("PermanentMemberIgnoresTTLAdd", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		added, err := q.Add(ctx, "seed", 0)
		require.NoError(t, err)
		require.True(t, added)

		added, err = q.Add(ctx, "seed", time.Hour)
		require.NoError(t, err)
		require.False(t, added)
	})

	t.Run("ClearDropsEverything", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		_, err := q.Add(ctx, "p", 0)
		require.NoError(t, err)
		_, err = q.Add(ctx, "t", time.Hour)
		require.NoError(t, err)

		require.NoError(t, q.Clear(ctx))

		stats, err := queue.Snapshot(ctx, q)
		require.NoError(t, err)
		require.Equal(t, queue.Stats{}, stats)

		added, err := q.Add(ctx, "t", time.Hour)
		require.NoError(t, err)
		require.True(t, added, "marker must be removed by Clear")
	})

	t.Run("ConcurrentAddsDedup", func(t *testing.T) {
		ctx := context.Background()
		q, _ := newQueue(t)

		const workers = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			firstErr error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				added, err := q.Add(ctx, "shared", 0)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					firstErr = err
					return
				}
				if added {
					wins++
				}
			}()
		}
		wg.Wait()
		require.NoError(t, firstErr)
		require.Equal(t, 1, wins)
	})

	t.Run("StaleDetection", func(t *testing.T) {
		ctx := context.Background()
		q, advance := newQueue(t)

		stale, err := queue.IsStale(ctx, q)
		require.NoError(t, err)
		require.False(t, stale)

		for i := 0; i < 3; i++ {
			_, err := q.Add(ctx, fmt.Sprintf("id-%d", i), time.Minute)
			require.NoError(t, err)
		}
		advance(2 * time.Minute)
		stale, err = queue.IsStale(ctx, q)
		require.NoError(t, err)
		require.False(t, stale, "items are still waiting")
	})
}
