package crawler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/aram-crawler/internal/queue"
	"github.com/JakeFAU/aram-crawler/internal/riot"
)

// UserQueue holds PUUIDs waiting for match listing.
type UserQueue interface {
	Add(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Get(ctx context.Context) (string, bool, error)
	Stats(ctx context.Context) (queue.Stats, error)
	Clear(ctx context.Context) error
}

// MatchQueue holds match ids waiting to be fetched.
type MatchQueue interface {
	Add(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context) (string, bool, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// Gateway is the upstream match API.
type Gateway interface {
	ListMatchIDs(ctx context.Context, puuid string, start, count int) []string
	FetchMatches(ctx context.Context, ids []string) []riot.MatchData
}

// DocumentStore upserts raw JSON documents.
type DocumentStore interface {
	Save(ctx context.Context, collection, key string, doc json.RawMessage) error
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time and sleeps between batches.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
