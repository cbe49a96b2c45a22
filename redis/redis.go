package redis

import (
	"context"

	"site-builder/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RedisClient *redis.Client

// InitRedis connects to redis; the service keeps running without it and the
// cache degrades to a pass-through.
func InitRedis(ctx context.Context, log *zap.Logger) {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: config.AppConfig.RedisAddress,
	})
	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		log.Warn("Redis not available. Running without Redis.", zap.Error(err))
		RedisClient = nil
		return
	}

	log.Info("Redis connected successfully.")
}
