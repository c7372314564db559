// Package redis implements queue.Dedup on top of a Redis LIST, a SET, and
// per-item TTL marker keys. Add and Get run as Lua scripts so each is atomic
// against concurrent cycle invocations sharing the same keys.
//
// Get derives the marker key from the popped item inside its script, so the
// queue needs a standalone server and takes a *goredis.Client, not a cluster
// client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/aram-crawler/internal/queue"
)

// KEYS: list, set, expiring-set, marker. ARGV: item, ttl in ms (0 = permanent).
var addScript = goredis.NewScript(`
local ttl = tonumber(ARGV[2])
if ttl > 0 and redis.call('EXISTS', KEYS[4]) == 1 then
  return 0
end
if redis.call('SADD', KEYS[2], ARGV[1]) == 0 then
  if ttl == 0 or redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 0 then
    return 0
  end
end
redis.call('LPUSH', KEYS[1], ARGV[1])
if ttl > 0 then
  redis.call('SET', KEYS[4], '1', 'PX', ttl)
  redis.call('SADD', KEYS[3], ARGV[1])
end
return 1
`)

// KEYS: list, set, expiring-set. ARGV: marker prefix.
var getScript = goredis.NewScript(`
local item = redis.call('RPOP', KEYS[1])
if not item then
  return false
end
redis.call('SREM', KEYS[2], item)
redis.call('SREM', KEYS[3], item)
redis.call('DEL', ARGV[1] .. item)
return item
`)

const scanBatch = 500

// Config captures Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping redis: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Queue is a Redis-backed queue.Dedup.
type Queue struct {
	client *goredis.Client
	names  queue.Names
}

// New binds a queue to the given key names.
func New(client *goredis.Client, names queue.Names) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if names.Queue == "" || names.Set == "" {
		return nil, fmt.Errorf("queue and set names are required")
	}
	return &Queue{client: client, names: names}, nil
}

func (q *Queue) expiringKey() string {
	return q.names.Set + ":expiring"
}

// Add implements queue.Dedup.
func (q *Queue) Add(ctx context.Context, item string, ttl time.Duration) (bool, error) {
	ttlMs := int64(0)
	if ttl > 0 {
		ttlMs = ttl.Milliseconds()
		if ttlMs == 0 {
			ttlMs = 1
		}
	}
	keys := []string{q.names.Queue, q.names.Set, q.expiringKey(), q.names.MarkerKey(item)}
	added, err := addScript.Run(ctx, q.client, keys, item, ttlMs).Int()
	if err != nil {
		return false, fmt.Errorf("add %s to %s: %w", item, q.names.Queue, err)
	}
	return added == 1, nil
}

// Get implements queue.Dedup.
func (q *Queue) Get(ctx context.Context) (string, bool, error) {
	keys := []string{q.names.Queue, q.names.Set, q.expiringKey()}
	item, err := getScript.Run(ctx, q.client, keys, q.names.MarkerKey("")).Text()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop %s: %w", q.names.Queue, err)
	}
	return item, true, nil
}

// QueueSize implements queue.Dedup.
func (q *Queue) QueueSize(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.names.Queue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.names.Queue, err)
	}
	return n, nil
}

// SetSize implements queue.Dedup.
func (q *Queue) SetSize(ctx context.Context) (int64, error) {
	n, err := q.client.SCard(ctx, q.names.Set).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", q.names.Set, err)
	}
	return n, nil
}

// Clear implements queue.Dedup. Markers are found with SCAN so large sets do
// not block the server the way KEYS would.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.names.Queue, q.names.Set, q.expiringKey()).Err(); err != nil {
		return fmt.Errorf("delete queue keys: %w", err)
	}
	var cursor uint64
	for {
		keys, next, err := q.client.Scan(ctx, cursor, q.names.MarkerPattern(), scanBatch).Result()
		if err != nil {
			return fmt.Errorf("scan markers: %w", err)
		}
		if len(keys) > 0 {
			if err := q.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete markers: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
