package redis

import (
	"context"
	"fmt"
	"time"

	"compliance-dashboard/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client go-redis 客户端
type Client = redis.Client

// 会话查询在每个请求路径上，超时要短于 HTTP 写超时
const (
	defaultPoolSize = 10
	dialTimeout     = 3 * time.Second
	ioTimeout       = 2 * time.Second
	pingTimeout     = 3 * time.Second
)

// NewRedisClient 会话存储与遥测镜像共用
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
	})
}

// Ping 启动时确认可达
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}
	return nil
}
