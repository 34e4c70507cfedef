// internal/pkg/session/store_redis.go
package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "easypoints:session:"

// RedisStore 每个会话一个 string key，过期时间即浏览器会话周期。
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Name() string { return "redis" }

func redisKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get session %s", id)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKey(id), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set session %s", id)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return errors.Wrapf(err, "redis del session %s", id)
	}
	return nil
}
