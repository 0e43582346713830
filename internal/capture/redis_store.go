package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"race-timing-ingest/internal/model"
)

// RedisQueueStore backs a pending queue with a redis list, for kiosk devices
// running next to the venue server. Same append-only semantics as the file
// store; the key is scoped to one capture session.
type RedisQueueStore struct {
	client *redis.Client
	key    string
}

func NewRedisQueueStore(client *redis.Client, key string) *RedisQueueStore {
	return &RedisQueueStore{client: client, key: key}
}

func (s *RedisQueueStore) Append(ctx context.Context, entry model.PendingEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal pending entry: %w", err)
	}
	return s.client.RPush(ctx, s.key, data).Err()
}

func (s *RedisQueueStore) DrainAll(ctx context.Context) ([]model.PendingEntry, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending queue %s: %w", s.key, err)
	}

	entries := make([]model.PendingEntry, 0, len(values))
	for _, v := range values {
		var entry model.PendingEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ClearThrough trims the oldest count entries, leaving anything pushed after
// the drain snapshot at the tail of the list.
func (s *RedisQueueStore) ClearThrough(ctx context.Context, count int) error {
	return s.client.LTrim(ctx, s.key, int64(count), -1).Err()
}

func (s *RedisQueueStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisQueueStore) Len(ctx context.Context) (int, error) {
	entries, err := s.DrainAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(dedupe(entries)), nil
}
