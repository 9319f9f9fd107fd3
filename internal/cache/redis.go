package cache

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type redisClient struct {
	c      *rdb.Client
	prefix string
}

// NewRedis crea un cache respaldado por Redis.
func NewRedis(cfg Config) Client {
	return &redisClient{
		c:      rdb.NewClient(&rdb.Options{Addr: cfg.Addr, DB: cfg.DB}),
		prefix: cfg.Prefix,
	}
}

func (r *redisClient) key(k string) string { return r.prefix + k }

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.c.Get(ctx, r.key(key)).Result()
	if errors.Is(err, rdb.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisClient) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

func (r *redisClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := r.c.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, err
	}
	// Primer hit de la ventana: fijar expiración.
	if n == 1 && ttl > 0 {
		_ = r.c.Expire(ctx, r.key(key), ttl).Err()
	}
	return n, nil
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *redisClient) Close() error { return r.c.Close() }
