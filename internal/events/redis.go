package events

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"BlockPay/internal/agent"
)

const defaultRedisBacklog = 1000

// RedisPublisher 将事件 LPUSH 到 Redis list，并只保留最近的 backlog 条。
type RedisPublisher struct {
	client  *goredis.Client
	key     string
	backlog int64
}

// NewRedisPublisher 基于已有客户端创建发布器。
func NewRedisPublisher(client *goredis.Client, key string, backlog int) *RedisPublisher {
	if backlog <= 0 {
		backlog = defaultRedisBacklog
	}
	return &RedisPublisher{client: client, key: key, backlog: int64(backlog)}
}

// Record 实现 agent.Recorder。
func (p *RedisPublisher) Record(ctx context.Context, exchange agent.Exchange) error {
	payload, err := encode(exchange)
	if err != nil {
		return err
	}
	_, err = p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, p.key, payload)
		pipe.LTrim(ctx, p.key, 0, p.backlog-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
