package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry implements Registry as a hash-per-document, adapted
// from sumanthd032-CollabText/server's redis.Client wiring. Each
// document's presence set is the Redis hash "presence:{docId}" mapping
// userID to its cursor position as a decimal string; the whole hash
// carries one TTL, refreshed by EXPIRE on every write.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry wraps client with the given inactivity ttl. A
// non-positive ttl falls back to DefaultTTL.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisRegistry{client: client, ttl: ttl}
}

func hashKey(docID string) string {
	return "presence:" + docID
}

func (r *RedisRegistry) Join(ctx context.Context, docID, userID string) error {
	return r.UpdateCursor(ctx, docID, userID, 0)
}

func (r *RedisRegistry) Leave(ctx context.Context, docID, userID string) error {
	key := hashKey(docID)

	if err := r.client.HDel(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("presence: leave %s/%s: %w", docID, userID, err)
	}

	return nil
}

func (r *RedisRegistry) UpdateCursor(ctx context.Context, docID, userID string, position int) error {
	key := hashKey(docID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, userID, strconv.Itoa(position))
	pipe.Expire(ctx, key, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: update cursor %s/%s: %w", docID, userID, err)
	}

	return nil
}

func (r *RedisRegistry) ListUsers(ctx context.Context, docID string) ([]string, error) {
	users, err := r.client.HKeys(ctx, hashKey(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list users %s: %w", docID, err)
	}

	return users, nil
}

func (r *RedisRegistry) GetCursors(ctx context.Context, docID string) (map[string]int, error) {
	raw, err := r.client.HGetAll(ctx, hashKey(docID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: get cursors %s: %w", docID, err)
	}

	cursors := make(map[string]int, len(raw))

	for user, posStr := range raw {
		pos, err := strconv.Atoi(posStr)
		if err != nil {
			continue
		}

		cursors[user] = pos
	}

	return cursors, nil
}

var _ Registry = (*RedisRegistry)(nil)
