package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Exchange 是一次完成编排的交互记录，不包含校验失败的请求。
type Exchange struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	Message       string    `json:"message"`
	Reply         string    `json:"reply,omitempty"`
	Error         string    `json:"error,omitempty"`
	Outcome       string    `json:"outcome"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Recorder 接收交互记录。失败只会被记录日志，不影响响应。
type Recorder interface {
	Record(ctx context.Context, exchange Exchange) error
}

// RecorderFunc 允许使用普通函数实现 Recorder。
type RecorderFunc func(ctx context.Context, exchange Exchange) error

// Record 实现 Recorder。
func (f RecorderFunc) Record(ctx context.Context, exchange Exchange) error {
	return f(ctx, exchange)
}

type fanout []Recorder

// Recorders 将记录依次转发给所有接收方，并汇总错误。
func Recorders(recorders ...Recorder) Recorder {
	filtered := make(fanout, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func (f fanout) Record(ctx context.Context, exchange Exchange) error {
	var errs []error
	for i, r := range f {
		if err := r.Record(ctx, exchange); err != nil {
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
