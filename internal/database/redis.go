package database

import (
	"context"
	"fmt"

	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient creates a client and waits for Redis to answer a ping. The
// worker BLPOPs each hold a connection, so the pool leaves room for them.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.PoolSize < redisMinPoolSize {
		opt.PoolSize = redisMinPoolSize
	}

	rdb := redis.NewClient(opt)

	err = retry(ctx, log.With().Str("store", "redis").Logger(), func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}

const redisMinPoolSize = 20
