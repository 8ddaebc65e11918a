package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InitRedis initializes the Redis client. It returns nil when Redis is
// unreachable; callers treat a nil client as "no queue, no cycle lock".
func InitRedis(ctx context.Context, v *viper.Viper, logger *zap.Logger) *redis.Client {
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	addr := v.GetString("redis.host") + ":" + v.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis connection failed, continuing without Redis",
			zap.String("addr", addr), zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.Info("Redis connection established", zap.String("addr", addr))
	return rdb
}
