package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"BlockPay/internal/config"
)

const pingTimeout = 5 * time.Second

// Open 创建 Redis 客户端并确认连接可用。
func Open(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// Key 拼接带前缀的键名。
func Key(prefix, name string) string {
	if prefix == "" {
		prefix = "blockpay"
	}
	return prefix + ":" + name
}
