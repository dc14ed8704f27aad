// Package app holds startup helpers shared by the binaries.
package app

import (
	"errors"

	migrate "github.com/golang-migrate/migrate/v4"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewLimiterStore returns a Redis limiter store, or a process-local one when
// rdb is nil.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: "kasir:rl"}), nil
	}
	return redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "kasir:rl", MaxRetry: 3})
}

// RunMigrations applies every pending up migration.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
