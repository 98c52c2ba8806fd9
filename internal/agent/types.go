package agent

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	xerrors "BlockPay/internal/errors"
)

// DefaultThreadID 用于没有钱包地址的会话。
const DefaultThreadID = "default-thread"

// 返回给调用方的固定文案。
const (
	InvalidMessageText = "Invalid message: userMessage is required and must be a non-empty string"
	InitFailureText    = "Failed to initialize agent. Please check your configuration."
	EmptyReplyText     = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
	TimeoutText        = "Request timed out. Please try again."
	InvalidFormatText  = "Invalid message format. Please try again."
	FallbackErrorText  = "I'm sorry, I encountered an issue processing your message."
)

// AgentRequest 是 POST /api/agent 的请求体。
type AgentRequest struct {
	UserMessage   string  `json:"userMessage"`
	WalletAddress *string `json:"walletAddress,omitempty"`
}

// AgentResponse 是返回给调用方的响应体，reply 与 error 每次只有一个有意义。
type AgentResponse struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// DecodeAgentRequest 解析原始请求体。字段类型不符与 JSON 语法错误都按校验失败处理。
func DecodeAgentRequest(body []byte) (AgentRequest, error) {
	var raw struct {
		UserMessage   json.RawMessage `json:"userMessage"`
		WalletAddress json.RawMessage `json:"walletAddress"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return AgentRequest{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, InvalidMessageText)
	}

	var req AgentRequest
	if !isJSONString(raw.UserMessage) {
		return AgentRequest{}, xerrors.New(xerrors.CodeInvalidArgument, InvalidMessageText)
	}
	if err := json.Unmarshal(raw.UserMessage, &req.UserMessage); err != nil {
		return AgentRequest{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, InvalidMessageText)
	}

	if len(raw.WalletAddress) > 0 && string(raw.WalletAddress) != "null" {
		if !isJSONString(raw.WalletAddress) {
			return AgentRequest{}, xerrors.New(xerrors.CodeInvalidArgument, InvalidMessageText,
				xerrors.WithMetadata("field", "walletAddress"))
		}
		var wallet string
		if err := json.Unmarshal(raw.WalletAddress, &wallet); err != nil {
			return AgentRequest{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, InvalidMessageText)
		}
		req.WalletAddress = &wallet
	}

	if err := req.Validate(); err != nil {
		return AgentRequest{}, err
	}
	return req, nil
}

func isJSONString(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return len(trimmed) >= 2 && trimmed[0] == '"'
}

// trimMessage 去除首尾空白，与浏览器端 String.prototype.trim 一致，包含 U+FEFF。
func trimMessage(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

// Validate 检查 userMessage 在去除首尾空白后非空。
func (r AgentRequest) Validate() error {
	if trimMessage(r.UserMessage) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, InvalidMessageText)
	}
	return nil
}

// Wallet 返回钱包地址，空字符串视为未提供。
func (r AgentRequest) Wallet() (string, bool) {
	if r.WalletAddress == nil || *r.WalletAddress == "" {
		return "", false
	}
	return *r.WalletAddress, true
}

// ContextMessage 构造发送给智能体的唯一一条用户消息。
func (r AgentRequest) ContextMessage() string {
	message := trimMessage(r.UserMessage)
	if wallet, ok := r.Wallet(); ok {
		return "User wallet: " + wallet + "\nUser message: " + message
	}
	return message
}

// ThreadID 返回用于关联多轮对话的标识。
func (r AgentRequest) ThreadID() string {
	if wallet, ok := r.Wallet(); ok {
		return wallet
	}
	return DefaultThreadID
}

// Message 是会话中的一条消息。Content 保持运行时给出的原始类型。
type Message struct {
	Role    string `json:"role,omitempty"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

// MessageBatch 对应片段中的 {messages: [...]} 结构。
type MessageBatch struct {
	Messages []Message `json:"messages"`
}

// Chunk 是运行时流式产出的最小单元。
type Chunk struct {
	Agent *MessageBatch `json:"agent,omitempty"`
	Tools *MessageBatch `json:"tools,omitempty"`
}

// AgentContent 返回 agent.messages[0].content，仅当它是字符串时有效。
func (c Chunk) AgentContent() (string, bool) {
	if c.Agent == nil || len(c.Agent.Messages) == 0 {
		return "", false
	}
	text, ok := c.Agent.Messages[0].Content.(string)
	return text, ok
}

// Input 是一次对话轮次的输入。
type Input struct {
	Messages []Message `json:"messages"`
}

// Options 携带对话关联信息。
type Options struct {
	ThreadID string `json:"thread_id"`
}

// Runtime 负责构造智能体实例。
type Runtime interface {
	CreateAgent(ctx context.Context) (Agent, error)
}

// Agent 针对一轮对话产生片段流。
type Agent interface {
	Stream(ctx context.Context, input Input, opts Options) (Stream, error)
}

// Stream 是有限且不可重放的片段序列。Next 在结束时返回 io.EOF，之后继续返回 io.EOF。
type Stream interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// RuntimeFunc 允许使用普通函数实现 Runtime。
type RuntimeFunc func(ctx context.Context) (Agent, error)

// CreateAgent 实现 Runtime。
func (f RuntimeFunc) CreateAgent(ctx context.Context) (Agent, error) {
	return f(ctx)
}
