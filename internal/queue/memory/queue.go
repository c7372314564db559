// Package memory provides an in-process deduplicating queue for local
// development and tests. It mirrors the Redis layout: an ordered sequence, a
// membership set, and per-item TTL markers.
package memory

import (
	"context"
	"sync"
	"time"
)

// Option customizes a Queue.
type Option func(*Queue)

// WithClock overrides the time source used to expire TTL markers.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is a mutex-guarded FIFO with set-backed dedup. All operations are
// atomic with respect to each other.
type Queue struct {
	mu       sync.Mutex
	items    []string
	members  map[string]struct{}
	expiring map[string]struct{}
	markers  map[string]time.Time
	now      func() time.Time
}

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		members:  make(map[string]struct{}),
		expiring: make(map[string]struct{}),
		markers:  make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add enqueues item unless it is seen. See queue.Dedup for the TTL rules.
func (q *Queue) Add(_ context.Context, item string, ttl time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ttl > 0 && q.markerLive(item) {
		return false, nil
	}
	if _, ok := q.members[item]; ok {
		// A member whose marker lapsed is eligible again; permanent members never are.
		if _, wasExpiring := q.expiring[item]; ttl <= 0 || !wasExpiring {
			return false, nil
		}
	}
	q.members[item] = struct{}{}
	q.items = append(q.items, item)
	if ttl > 0 {
		q.markers[item] = q.now().Add(ttl)
		q.expiring[item] = struct{}{}
	}
	return true, nil
}

// Get pops the oldest item and clears its membership and marker.
func (q *Queue) Get(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false, nil
	}
	item := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	delete(q.members, item)
	delete(q.expiring, item)
	delete(q.markers, item)
	return item, true, nil
}

// QueueSize returns the number of waiting items.
func (q *Queue) QueueSize(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// SetSize returns the number of set members.
func (q *Queue) SetSize(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.members)), nil
}

// Clear empties the queue.
func (q *Queue) Clear(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.members = make(map[string]struct{})
	q.expiring = make(map[string]struct{})
	q.markers = make(map[string]time.Time)
	return nil
}

func (q *Queue) markerLive(item string) bool {
	deadline, ok := q.markers[item]
	if !ok {
		return false
	}
	if q.now().Before(deadline) {
		return true
	}
	delete(q.markers, item)
	return false
}
