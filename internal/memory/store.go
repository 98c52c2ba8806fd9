// Package memory keeps per-thread conversation history for the agent runtime.
package memory

import (
	"context"
	"sync"
)

// DefaultMaxMessages 是每个会话保留的默认消息条数。
const DefaultMaxMessages = 40

// Message 是会话历史中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store 保存会话历史。单次操作是原子的，跨操作不加锁。
type Store interface {
	Load(ctx context.Context, threadID string) ([]Message, error)
	Append(ctx context.Context, threadID string, messages ...Message) error
	Close() error
}

// InMemoryStore 将会话历史保存在进程内存中。
type InMemoryStore struct {
	mu      sync.RWMutex
	max     int
	threads map[string][]Message
}

// NewInMemoryStore 创建内存存储，limit 非正时使用默认值。
func NewInMemoryStore(limit int) *InMemoryStore {
	if limit <= 0 {
		limit = DefaultMaxMessages
	}
	return &InMemoryStore{max: limit, threads: make(map[string][]Message)}
}

// Load 返回会话历史的副本。
func (s *InMemoryStore) Load(_ context.Context, threadID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.threads[threadID]
	out := make([]Message, len(history))
	copy(out, history)
	return out, nil
}

// Append 追加消息，并丢弃超出上限的最早消息。
func (s *InMemoryStore) Append(_ context.Context, threadID string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.threads[threadID], messages...)
	if len(history) > s.max {
		history = append([]Message(nil), history[len(history)-s.max:]...)
	}
	s.threads[threadID] = history
	return nil
}

// Close 实现 Store。
func (s *InMemoryStore) Close() error { return nil }
