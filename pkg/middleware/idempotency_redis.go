package middleware

import (
	"context"
	"staybook/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
)

const idempotencyKeyPrefix = "staybook:idempotency:"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisIdempotencyStore shares cached responses between replicas. Entries
// expire through Redis TTLs, so there is nothing to clean up.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisIdempotencyStore(client redis.Cmdable, ttl time.Duration, log *logger.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Get treats Redis failures as a miss; the request then runs normally.
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	data, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("Idempotency lookup failed", "error", err)
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		s.log.Warn("Discarding corrupt idempotency entry", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	response.CreatedAt = time.Now()
	data, err := json.Marshal(response)
	if err != nil {
		s.log.Error("Failed to encode idempotent response", "error", err)
		return
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, data, s.ttl).Err(); err != nil {
		s.log.Warn("Failed to store idempotent response", "error", err)
	}
}

func (s *RedisIdempotencyStore) Stop() {}
