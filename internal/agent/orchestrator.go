package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "BlockPay/internal/errors"
	"BlockPay/internal/observability/metrics"
	"BlockPay/pkg/logger"
)

// DefaultTimeout 是等待智能体完成回复的默认上限。
const DefaultTimeout = 30 * time.Second

const (
	timeoutMessage = "Agent response timeout"
	recordTimeout  = 5 * time.Second
)

// Orchestrator 处理单个聊天请求：校验、获取智能体、限时消费片段流并分类错误。
type Orchestrator struct {
	runtime  Runtime
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option 定义可选的 Orchestrator 配置。
type Option func(*Orchestrator)

// WithTimeout 设置等待回复的上限，非正值保持默认。
func WithTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithRecorder 配置交互记录的接收方。
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithLogger 替换默认的日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New 创建 Orchestrator。
func New(runtime Runtime, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runtime: runtime,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("agent")
	}
	return o
}

// Handle 将一次请求转换为一次响应，返回响应体与 HTTP 状态码。
func (o *Orchestrator) Handle(ctx context.Context, req AgentRequest) (AgentResponse, int) {
	started := o.now()

	// 校验失败直接返回，不调用任何外部组件。
	if err := req.Validate(); err != nil {
		metrics.ObserveAgentExchange(metrics.OutcomeValidation, 0)
		return AgentResponse{Error: InvalidMessageText}, http.StatusBadRequest
	}

	threadID := req.ThreadID()
	log := o.logger.With(slog.String("thread_id", threadID))

	// 获取智能体实例，原始错误只写日志。
	ag, err := o.acquire(ctx)
	if err != nil {
		log.Error("初始化智能体失败", slog.Any("error", err))
		resp := AgentResponse{Error: InitFailureText}
		o.finish(ctx, req, resp, metrics.OutcomeInitFailure, started)
		return resp, http.StatusInternalServerError
	}

	input := Input{Messages: []Message{{Role: "user", Content: req.ContextMessage()}}}
	reply, err := o.run(ctx, ag, input, Options{ThreadID: threadID})
	if err != nil {
		outcome := xerrors.OutcomeOf(err)
		log.Error("智能体处理失败", slog.String("outcome", outcome), slog.Any("error", err))
		resp := AgentResponse{Error: Classify(err)}
		o.finish(ctx, req, resp, outcome, started)
		return resp, http.StatusInternalServerError
	}

	// 没有内容不算失败，返回固定的致歉文案。
	if strings.TrimSpace(reply) == "" {
		resp := AgentResponse{Reply: EmptyReplyText}
		o.finish(ctx, req, resp, metrics.OutcomeEmpty, started)
		return resp, http.StatusOK
	}

	resp := AgentResponse{Reply: reply}
	o.finish(ctx, req, resp, metrics.OutcomeReply, started)
	return resp, http.StatusOK
}

func (o *Orchestrator) acquire(ctx context.Context) (ag Agent, err error) {
	if o.runtime == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置智能体运行时")
	}
	defer func() {
		if r := recover(); r != nil {
			ag = nil
			err = xerrors.New(xerrors.CodeInitializationFailure, "初始化智能体时发生 panic",
				xerrors.WithMetadata("panic", fmt.Sprint(r)))
		}
	}()
	ag, err = o.runtime.CreateAgent(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化智能体失败")
	}
	if ag == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "运行时返回了空的智能体")
	}
	return ag, nil
}

type streamResult struct {
	reply string
	err   error
}

// run 将流的创建与消费放在同一个任务中，与计时器竞争。
// 计时器先触发时取消消费方的 context；结果通道带缓冲，消费协程总能退出。
func (o *Orchestrator) run(ctx context.Context, ag Agent, input Input, opts Options) (string, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan streamResult, 1)
	go func() {
		reply, err := consume(streamCtx, ag, input, opts)
		done <- streamResult{reply: reply, err: err}
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.reply, res.err
	case <-timer.C:
		return "", xerrors.New(xerrors.CodeTimeout, timeoutMessage)
	case <-ctx.Done():
		return "", xerrors.Wrap(xerrors.CodeUpstreamFailure, ctx.Err(), "请求已取消")
	}
}

// consume 按到达顺序拼接 agent.messages[0].content，其余片段忽略。
func consume(ctx context.Context, ag Agent, input Input, opts Options) (string, error) {
	stream, err := ag.Stream(ctx, input, opts)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Next(ctx)
		if stdErrors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if err != nil {
			return "", err
		}
		metrics.ObserveAgentChunk()
		if text, ok := chunk.AgentContent(); ok {
			reply.WriteString(text)
		}
	}
}

// Classify 将错误转换为调用方可见的文案，按顺序匹配第一条规则。
// 这里的子串匹配沿用上游库的错误文本，属于兼容性启发式，不要继续扩展。
func Classify(err error) string {
	message := messageOf(err)
	switch {
	case message == "":
		return FallbackErrorText
	case strings.Contains(message, "timeout"):
		return TimeoutText
	case strings.Contains(message, "Invalid value for"), strings.Contains(message, "null"):
		return InvalidFormatText
	default:
		return message
	}
}

// messageOf 返回不带错误码前缀的描述；包装了原因的错误使用原因的文本。
func messageOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := err.(*xerrors.Error); ok {
		if cause := e.Unwrap(); cause != nil {
			return messageOf(cause)
		}
		return e.Message()
	}
	return err.Error()
}

func (o *Orchestrator) finish(ctx context.Context, req AgentRequest, resp AgentResponse, outcome string, started time.Time) {
	elapsed := o.now().Sub(started)
	metrics.ObserveAgentExchange(outcome, elapsed)

	wallet, _ := req.Wallet()
	exchange := Exchange{
		ID:            uuid.NewString(),
		ThreadID:      req.ThreadID(),
		WalletAddress: wallet,
		Message:       trimMessage(req.UserMessage),
		Reply:         resp.Reply,
		Error:         resp.Error,
		Outcome:       outcome,
		DurationMS:    elapsed.Milliseconds(),
		CreatedAt:     started.UTC(),
	}

	logger.Audit().Info("agent_exchange",
		slog.String("id", exchange.ID),
		slog.String("thread_id", exchange.ThreadID),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", exchange.DurationMS),
	)

	if o.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := o.recorder.Record(recordCtx, exchange); err != nil {
		o.logger.Warn("记录交互失败", slog.String("id", exchange.ID), slog.Any("error", err))
	}
}
