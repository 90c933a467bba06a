package store

import (
	"context"
	"fmt"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/config"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/database"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Open builds the store selected by cfg.Store.Backend. The returned close func
// releases the backend's connections and is never nil.
func Open(ctx context.Context, cfg *config.Config) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case "", "memory":
		logger.Infof("store: using in-memory backend")
		return NewMemoryStore(), noop, nil
	case "none":
		logger.Infof("store: persistence disabled")
		return NoopStore{}, noop, nil
	case "redis":
		if cfg.Redis.Host == "" {
			return nil, nil, fmt.Errorf("store backend redis requires REDIS_HOST")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr(), err)
		}
		logger.Infof("store: using redis at %s", cfg.Redis.Addr())
		return NewRedisStore(client, ""), client.Close, nil
	case "mongo":
		if cfg.MongoDB.URI == "" {
			return nil, nil, fmt.Errorf("store backend mongo requires MONGODB_URI")
		}
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			return nil, nil, err
		}
		col := client.Database(cfg.MongoDB.Database).Collection("kv")
		logger.Infof("store: using mongo database %s", cfg.MongoDB.Database)
		return NewMongoStore(col), func() error { return client.Disconnect(context.Background()) }, nil
	case "sqlite":
		s, err := OpenSQLiteStore(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("store: using sqlite file %s", cfg.Store.Path)
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
