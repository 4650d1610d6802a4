package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker mirrors who is present in which room.
type Tracker interface {
	Add(ctx context.Context, room, identity string) error
	Remove(ctx context.Context, room, identity string) error
	Online(ctx context.Context, room string) ([]string, error)
	Close() error
}

// Key returns the redis hash holding a room's presence counters.
func Key(room string) string {
	return "room:" + room + ":users"
}

// RedisTracker keeps a per-room hash of identity -> live connection count, so
// one identity on several connections stays present until its last leave.
type RedisTracker struct {
	rdb *redis.Client
}

// NewRedis connects to redis at addr.
func NewRedis(addr string) *RedisTracker {
	return &RedisTracker{rdb: redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	})}
}

// Ping checks the connection.
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Add implements core.PresenceTracker.
func (t *RedisTracker) Add(ctx context.Context, room, identity string) error {
	if err := t.rdb.HIncrBy(ctx, Key(room), identity, 1).Err(); err != nil {
		return fmt.Errorf("presence add %s: %w", room, err)
	}
	return nil
}

// Remove implements core.PresenceTracker.
func (t *RedisTracker) Remove(ctx context.Context, room, identity string) error {
	n, err := t.rdb.HIncrBy(ctx, Key(room), identity, -1).Result()
	if err != nil {
		return fmt.Errorf("presence remove %s: %w", room, err)
	}
	if n <= 0 {
		if err := t.rdb.HDel(ctx, Key(room), identity).Err(); err != nil {
			return fmt.Errorf("presence remove %s: %w", room, err)
		}
	}
	return nil
}

// Online lists identities with at least one live connection in room.
func (t *RedisTracker) Online(ctx context.Context, room string) ([]string, error) {
	counts, err := t.rdb.HGetAll(ctx, Key(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence online %s: %w", room, err)
	}
	return online(counts), nil
}

// Close releases the redis client.
func (t *RedisTracker) Close() error {
	return t.rdb.Close()
}

func online(counts map[string]string) []string {
	out := make([]string, 0, len(counts))
	for identity, raw := range counts {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}
