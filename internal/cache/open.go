package cache

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/solcials-sync/config"
	"github.com/d60-Lab/solcials-sync/internal/model"
	"github.com/d60-Lab/solcials-sync/pkg/database"
)

const redisNamespace = "solcials:"

// Open builds the configured backend. The returned close func releases
// the backend's connections.
func Open(ctx context.Context, cfg config.CacheConfig, clock clockwork.Clock) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(clock), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, redisNamespace), client.Close, nil
	case "database":
		db, err := database.Open(cfg.DatabaseDSN, &model.CacheEntry{})
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return NewGorm(db, clock), sqlDB.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
