// Package queue defines the deduplicating FIFO queue used to drive the crawl.
// The abstraction keeps the orchestrator independent of the backing store
// (Redis in production, an in-process implementation for tests and local runs).
package queue

import (
	"context"
	"fmt"
	"time"
)

// Dedup is a FIFO queue paired with a membership set. An item that is a member
// of the set, or that still carries an unexpired TTL marker, is considered seen
// and cannot be enqueued again.
type Dedup interface {
	// Add enqueues item at the tail unless it is already seen. A positive ttl
	// starts an expiry marker; after it lapses the item may be added again even
	// if it was never dequeued. It reports whether the item was inserted.
	Add(ctx context.Context, item string, ttl time.Duration) (bool, error)

	// Get pops the oldest item, removing it from the set and cancelling its
	// marker. ok is false when the queue is empty.
	Get(ctx context.Context) (item string, ok bool, err error)

	// QueueSize counts items waiting in the ordered sequence.
	QueueSize(ctx context.Context) (int64, error)

	// SetSize counts members of the dedup set. It is tracked independently of
	// QueueSize and may diverge from it after TTL expiry.
	SetSize(ctx context.Context) (int64, error)

	// Clear drops the sequence, the set, and every pending marker.
	Clear(ctx context.Context) error
}

// Names holds the backing-store keys for one queue.
type Names struct {
	Queue string
	Set   string
}

// MarkerKey returns the TTL marker key for item.
func (n Names) MarkerKey(item string) string {
	return n.Set + ":ttl:" + item
}

// MarkerPattern matches every TTL marker belonging to the set.
func (n Names) MarkerPattern() string {
	return n.Set + ":ttl:*"
}

// Stats is a point-in-time size snapshot.
type Stats struct {
	QueueSize int64 `json:"queue_size"`
	SetSize   int64 `json:"set_size"`
}

// Stale reports the state a consumer should treat as leftover: nothing is
// waiting but the set still holds members.
func (s Stats) Stale() bool {
	return s.QueueSize == 0 && s.SetSize > 0
}

// Snapshot reads both sizes from q.
func Snapshot(ctx context.Context, q Dedup) (Stats, error) {
	qs, err := q.QueueSize(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("queue size: %w", err)
	}
	ss, err := q.SetSize(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("set size: %w", err)
	}
	return Stats{QueueSize: qs, SetSize: ss}, nil
}

// IsStale reports whether q is in the queue-empty-but-set-populated state.
func IsStale(ctx context.Context, q Dedup) (bool, error) {
	stats, err := Snapshot(ctx, q)
	if err != nil {
		return false, err
	}
	return stats.Stale(), nil
}
