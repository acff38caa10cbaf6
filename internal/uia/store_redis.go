package uia

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hearth/pkg/sentinel"
)

const (
	redisSessionKeyPrefix = "uia:session:"
	redisStagesKeySuffix  = ":stages"
)

// RedisSessionStore is the Redis-backed SessionStore for deployments where
// registration rounds may land on different instances. Expiry is delegated
// to key TTLs, so an expired session is simply absent; the engine treats
// absent and expired identically.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Create(ctx context.Context, ttl time.Duration) (*Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	if err := s.client.Set(ctx, redisSessionKeyPrefix+id, now.Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return nil, fmt.Errorf("create uia session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return &Session{ID: id, CreatedAt: now}, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	createdAt, err := s.client.Get(ctx, redisSessionKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get uia session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	members, err := s.client.SMembers(ctx, redisSessionKeyPrefix+id+redisStagesKeySuffix).Result()
	if err != nil {
		return nil, fmt.Errorf("get uia session stages: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	session := &Session{ID: id}
	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		session.CreatedAt = t
	}
	for _, m := range members {
		session.Completed = append(session.Completed, StageType(m))
	}
	return session, nil
}

func (s *RedisSessionStore) CompleteStage(ctx context.Context, id string, stage StageType) (*Session, error) {
	key := redisSessionKeyPrefix + id

	// The stage set inherits the session marker's remaining TTL so both keys
	// expire together.
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("uia session ttl: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if ttl < 0 {
		return nil, sentinel.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key+redisStagesKeySuffix, string(stage))
	pipe.Expire(ctx, key+redisStagesKeySuffix, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("complete uia stage: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	return s.Get(ctx, id)
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	key := redisSessionKeyPrefix + id
	if err := s.client.Del(ctx, key, key+redisStagesKeySuffix).Err(); err != nil {
		return fmt.Errorf("delete uia session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}
