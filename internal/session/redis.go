package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys. A deployment shares one realtime session per dashboard
// instance, so plain keys (no per-entity suffix) are enough.
const (
	redisSessionKey = "pulse:realtime:session"
	redisTopicsKey  = "pulse:realtime:topics"
)

// RedisStore keeps session state in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero TTL keeps entries
// until they are overwritten.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveSession records a session.
func (s *RedisStore) SaveSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, redisSessionKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.logger.Debug("session saved", "session_id", sess.ID, "topics", len(sess.Topics))
	return nil
}

// LastSession returns the most recently saved session.
func (s *RedisStore) LastSession(ctx context.Context) (Session, bool, error) {
	data, err := s.client.Get(ctx, redisSessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}

	return sess, true, nil
}

// SaveTopics records the current topic set.
func (s *RedisStore) SaveTopics(ctx context.Context, topics []string) error {
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	if err := s.client.Set(ctx, redisTopicsKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save topics: %w", err)
	}

	return nil
}

// LoadTopics returns the recorded topic set.
func (s *RedisStore) LoadTopics(ctx context.Context) ([]string, error) {
	data, err := s.client.Get(ctx, redisTopicsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get topics: %w", err)
	}

	var topics []string
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}

	return topics, nil
}
