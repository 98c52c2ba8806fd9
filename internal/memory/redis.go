package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisstore "BlockPay/internal/storage/redis"
)

// RedisStore 使用 Redis list 保存会话历史，每个会话一个键。
type RedisStore struct {
	client *goredis.Client
	prefix string
	max    int
	ttl    time.Duration
}

// NewRedisStore 基于已有客户端创建存储。
func NewRedisStore(client *goredis.Client, prefix string, limit int, ttl time.Duration) *RedisStore {
	if limit <= 0 {
		limit = DefaultMaxMessages
	}
	return &RedisStore{client: client, prefix: prefix, max: limit, ttl: ttl}
}

func (s *RedisStore) key(threadID string) string {
	return redisstore.Key(s.prefix, "thread:"+threadID)
}

// Load 读取会话历史。
func (s *RedisStore) Load(ctx context.Context, threadID string) ([]Message, error) {
	values, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}
	history := make([]Message, 0, len(values))
	for _, value := range values {
		var msg Message
		if err := json.Unmarshal([]byte(value), &msg); err != nil {
			return nil, fmt.Errorf("解析会话历史失败: %w", err)
		}
		history = append(history, msg)
	}
	return history, nil
}

// Append 在一个事务管道中追加、裁剪并刷新过期时间。
func (s *RedisStore) Append(ctx context.Context, threadID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("编码会话消息失败: %w", err)
		}
		values = append(values, string(encoded))
	}

	key := s.key(threadID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.max), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
