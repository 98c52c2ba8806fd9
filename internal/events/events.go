// Package events publishes agent exchanges to downstream consumers through an
// in-process channel, a Redis list or a RabbitMQ queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"BlockPay/internal/agent"
	"BlockPay/internal/config"
	redisstore "BlockPay/internal/storage/redis"
)

// ExchangeRecorded 是交互完成事件的类型名。
const ExchangeRecorded = "agent.exchange.recorded"

// Event 是投递到外部系统的消息体。
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Exchange   agent.Exchange `json:"exchange"`
}

// Publisher 将交互事件投递出去，同时实现 agent.Recorder。
type Publisher interface {
	agent.Recorder
	Close() error
}

func newEvent(exchange agent.Exchange) Event {
	return Event{Type: ExchangeRecorded, OccurredAt: time.Now().UTC(), Exchange: exchange}
}

func encode(exchange agent.Exchange) ([]byte, error) {
	payload, err := json.Marshal(newEvent(exchange))
	if err != nil {
		return nil, fmt.Errorf("编码事件失败: %w", err)
	}
	return payload, nil
}

// Open 根据配置创建发布器。driver 为 none 时返回 nil。
func Open(ctx context.Context, cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryPublisher(0), nil
	case "redis":
		client, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisPublisher(client, redisstore.Key(cfg.Redis.Prefix, "exchanges"), 0), nil
	case "rabbitmq":
		pub, err := NewRabbitMQPublisher(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}
