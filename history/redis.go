package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/deskmesh/core"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a core.HistoryStore backed by a Redis list per user. Entries
// are JSON encoded and the list is trimmed to the configured bound on every
// append, so memory stays constant per user.
type RedisStore struct {
	client   redis.UniversalClient
	ctx      context.Context
	maxTurns int
	prefix   string
}

// RedisStoreOptions configure a RedisStore.
type RedisStoreOptions struct {
	// MaxTurns bounds the list length per user. Defaults to 50.
	MaxTurns int
	// KeyPrefix namespaces the Redis keys. Defaults to "deskmesh:history:".
	KeyPrefix string
	// Context is used for all Redis operations. Defaults to
	// context.Background().
	Context context.Context
}

// NewRedisStore constructs a RedisStore on top of an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisStoreOptions)) *RedisStore {
	opts := RedisStoreOptions{
		MaxTurns:  50,
		KeyPrefix: "deskmesh:history:",
		Context:   context.Background(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisStore{
		client:   client,
		ctx:      opts.Context,
		maxTurns: opts.MaxTurns,
		prefix:   opts.KeyPrefix,
	}
}

type redisEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *RedisStore) key(userID string) string { return s.prefix + userID }

// GetHistory returns up to limit most recent turns for the user, oldest
// first.
func (s *RedisStore) GetHistory(userID string, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.maxTurns
	}

	// Newest entries live at the head of the list.
	raw, err := s.client.LRange(s.ctx, s.key(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", userID, err)
	}

	entries := make([]core.HistoryEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e redisEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			// Skip corrupt entries instead of failing the whole read.
			continue
		}
		entries = append(entries, core.HistoryEntry{Role: e.Role, Content: e.Content})
	}
	return entries, nil
}

// AddEntry pushes one turn and trims the list to the per-user bound.
func (s *RedisStore) AddEntry(userID, content string, isGenerated bool) error {
	role := "user"
	if isGenerated {
		role = "assistant"
	}

	payload, err := json.Marshal(redisEntry{Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(s.ctx, s.key(userID), payload)
	pipe.LTrim(s.ctx, s.key(userID), 0, int64(s.maxTurns-1))
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("storing history for %s: %w", userID, err)
	}
	return nil
}

// ClearHistory removes all turns for the user.
func (s *RedisStore) ClearHistory(userID string) error {
	if err := s.client.Del(s.ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("clearing history for %s: %w", userID, err)
	}
	return nil
}
