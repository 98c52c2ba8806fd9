package toolkit

import (
	"context"
	"io"
	"sync"

	"BlockPay/internal/agent"
)

// chunkStream 把生产协程写入通道的片段暴露为 agent.Stream。
type chunkStream struct {
	chunks <-chan agent.Chunk
	result <-chan error
	cancel context.CancelFunc

	once sync.Once
	err  error
	done bool
}

func newChunkStream(ctx context.Context, produce func(ctx context.Context, emit func(agent.Chunk) error) error) *chunkStream {
	ctx, cancel := context.WithCancel(ctx)
	chunks := make(chan agent.Chunk)
	result := make(chan error, 1)

	go func() {
		defer close(chunks)
		emit := func(chunk agent.Chunk) error {
			select {
			case chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		result <- produce(ctx, emit)
	}()

	return &chunkStream{chunks: chunks, result: result, cancel: cancel}
}

// Next 返回下一个片段，结束后持续返回 io.EOF 或首次遇到的错误。
func (s *chunkStream) Next(ctx context.Context) (agent.Chunk, error) {
	if s.done {
		return agent.Chunk{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return agent.Chunk{}, err
	}
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		s.done = true
		s.err = io.EOF
		if err := <-s.result; err != nil {
			s.err = err
		}
		return agent.Chunk{}, s.err
	case <-ctx.Done():
		return agent.Chunk{}, ctx.Err()
	}
}

// Close 取消生产协程。
func (s *chunkStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}
