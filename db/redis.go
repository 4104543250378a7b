package db

import (
	"context"
	"time"

	"enrollment-crm/config"
	"enrollment-crm/logger"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// ConnectRedis sets RDB when REDIS_ADDR is configured and reachable; it
// stays nil otherwise and callers fall back to in-process caching.
func ConnectRedis() {
	if config.AppConfig.RedisAddr == "" {
		logger.Warn("REDIS_ADDR is not set, caching and session revocation stay in-process")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Could not connect to Redis at %s: %v", config.AppConfig.RedisAddr, err)
		client.Close()
		return
	}

	RDB = client
	logger.Info("Connected to Redis at %s", config.AppConfig.RedisAddr)
}
