package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-site-audit/internal/core"
)

var errEmptyKey = errors.New("key cannot be empty")

// RedisCacheRepo is the Redis-backed CacheRepository used by the result archive. It works
// against a single node, a sentinel failover client or a cluster.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)

func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	return redisErr("set", key, r.client.Set(ctx, key, value, ttl).Err())
}

func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, redisErr("get", key, err)
}

func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	return r.countKeys(ctx, "del", key, r.client.Del)
}

func (r *RedisCacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	return r.countKeys(ctx, "exists", key, r.client.Exists)
}

// countKeys runs a multi-key command on one key and reports whether it matched.
func (r *RedisCacheRepo) countKeys(
	ctx context.Context,
	op, key string,
	cmd func(ctx context.Context, keys ...string) *redis.IntCmd,
) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}
	n, err := cmd(ctx, key).Result()
	if err != nil {
		return false, redisErr(op, key, err)
	}
	return n > 0, nil
}

func (r *RedisCacheRepo) Health(ctx context.Context) error {
	return redisErr("ping", "", r.client.Ping(ctx).Err())
}

func redisErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case key == "":
		return fmt.Errorf("redis %s: %w", op, err)
	default:
		return fmt.Errorf("redis %s %s: %w", op, key, err)
	}
}
