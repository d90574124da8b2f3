package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("archive commands need REDIS_URI, REDIS_SENTINEL_NODES or REDIS_CLUSTER_NODES")

// openDB connects to Postgres regardless of DB_ENABLED; the admin tool is how operators
// reach history when the server runs without it. The returned func closes the pool.
func (a *adminContext) openDB() (*sql.DB, func(), error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: a.Config.Postgres, Logger: a.Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	return db, a.closer("postgres", db.Close), nil
}

//nolint:ireturn // cluster and sentinel clients share redis.UniversalClient.
func (a *adminContext) openRedis() (redis.UniversalClient, func(), error) {
	if !hasRedisConfig(&a.Config.Redis) {
		return nil, nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: a.Config.Redis, Logger: a.Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, a.closer("redis", client.Close), nil
}

func (a *adminContext) closer(name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			a.Logger.Warn("close connection failed", "backend", name, "error", err)
		}
	}
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	switch {
	case cfg == nil:
		return false
	case cfg.UseCluster:
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	case cfg.UseSentinel:
		return len(cfg.SentinelNodes) > 0
	default:
		return cfg.URI != ""
	}
}
