package queue

import (
	"context"
	"time"
)

// UserRediscoveryTTL bounds how long a participant found in a processed match
// stays blocked from re-entering the user queue.
const UserRediscoveryTTL = 6 * time.Hour

// Default backing-store names.
var (
	DefaultUserNames  = Names{Queue: "user_id_queue", Set: "user_id_set"}
	DefaultMatchNames = Names{Queue: "match_id_queue", Set: "match_id_set"}
)

// NamesFor derives the list and set keys from a prefix, so "user_id" maps to
// user_id_queue and user_id_set.
func NamesFor(prefix string) Names {
	return Names{Queue: prefix + "_queue", Set: prefix + "_set"}
}

// UserIDs is the user (PUUID) queue. Adds may carry a TTL.
type UserIDs struct {
	q Dedup
}

// NewUserIDs wraps q as the user queue.
func NewUserIDs(q Dedup) *UserIDs {
	return &UserIDs{q: q}
}

// Add enqueues a user id. A zero ttl makes the dedup permanent until the id is dequeued.
func (u *UserIDs) Add(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return u.q.Add(ctx, id, ttl)
}

// Get pops the next user id.
func (u *UserIDs) Get(ctx context.Context) (string, bool, error) {
	return u.q.Get(ctx)
}

// Stats returns the current sizes.
func (u *UserIDs) Stats(ctx context.Context) (Stats, error) {
	return Snapshot(ctx, u.q)
}

// Clear empties the queue.
func (u *UserIDs) Clear(ctx context.Context) error {
	return u.q.Clear(ctx)
}

// MatchIDs is the match queue. Dedup is permanent: a match id once seen is
// never enqueued again for the life of the set.
type MatchIDs struct {
	q Dedup
}

// NewMatchIDs wraps q as the match queue.
func NewMatchIDs(q Dedup) *MatchIDs {
	return &MatchIDs{q: q}
}

// Add enqueues a match id without expiry.
func (m *MatchIDs) Add(ctx context.Context, id string) (bool, error) {
	return m.q.Add(ctx, id, 0)
}

// Get pops the next match id.
func (m *MatchIDs) Get(ctx context.Context) (string, bool, error) {
	return m.q.Get(ctx)
}

// Stats returns the current sizes.
func (m *MatchIDs) Stats(ctx context.Context) (Stats, error) {
	return Snapshot(ctx, m.q)
}

// Clear empties the queue.
func (m *MatchIDs) Clear(ctx context.Context) error {
	return m.q.Clear(ctx)
}
