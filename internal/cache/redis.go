package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = time.Second

type redisBackend struct {
	client *redis.Client
	log    *slog.Logger
}

func newRedisBackend(url string, log *slog.Logger) (*redisBackend, error) {
	log.Info("connecting to redis...")
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = redisTimeout
	rb := &redisBackend{client: redis.NewClient(opts), log: log}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err = rb.client.Ping(ctx).Err(); err != nil {
		_ = rb.client.Close()
		return nil, err
	}
	rb.log.Info("connected to redis!")
	return rb, nil
}

func (rb *redisBackend) name() string { return "redis" }

func (rb *redisBackend) get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	data, err := rb.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return data, err
}

func (rb *redisBackend) set(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return rb.client.Set(ctx, key, value, ttl).Err()
}

func (rb *redisBackend) close() error {
	return rb.client.Close()
}
