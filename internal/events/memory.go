package events

import (
	"context"
	"errors"
	"sync"

	"BlockPay/internal/agent"
)

// MemoryPublisher 使用 channel 投递事件，主要用于开发与测试。
type MemoryPublisher struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemoryPublisher 创建内存发布器。
func NewMemoryPublisher(size int) *MemoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &MemoryPublisher{ch: make(chan Event, size)}
}

// Record 将事件写入缓冲通道，缓冲区满时等待直到 ctx 结束。
func (p *MemoryPublisher) Record(ctx context.Context, exchange agent.Exchange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("发布器已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- newEvent(exchange):
		return nil
	}
}

// Events 返回事件通道，Close 之后通道关闭。
func (p *MemoryPublisher) Events() <-chan Event {
	return p.ch
}

// Close 关闭发布器。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.ch)
	return nil
}
