package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errRedisAddrRequired = errors.New("REDIS_ADDR is required in production")

// connectRedis dials cfg.Redis, or starts an in-process miniredis when no
// address is configured in development. cleanup closes whatever was opened.
func connectRedis(ctx context.Context, cfg authshield.RedisConfig, mode authshield.Mode, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Addr == "" {
		if mode == authshield.ModeProduction {
			return nil, nil, errRedisAddrRequired
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Warn("REDIS_ADDR not set, using in-process miniredis; data is lost on exit", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return client, func() { _ = client.Close() }, nil
}
