package kv

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"holidaze/internal/app/db"
	"holidaze/internal/configs"
	"holidaze/internal/pkg/logx"
)

// RedisKeyPrefix namespaces the redis backend's keys and change channel.
const RedisKeyPrefix = "holidaze:kv:"

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg configs.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case configs.StoreMemory:
		return NewMemoryStore(), nil

	case configs.StoreFile:
		return NewFileStore(cfg.Path, cfg.Passphrase, cfg.PollInterval)

	case configs.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool, true), nil

	case configs.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("kv: parsing redis url: %w", err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("kv: connecting to redis: %w", err)
		}

		logx.Info("Connected to redis key-value store", "addr", opts.Addr, "db", opts.DB)
		return NewRedisStore(client, RedisKeyPrefix, true), nil
	}

	return nil, fmt.Errorf("kv: unknown store driver %q", cfg.Driver)
}
