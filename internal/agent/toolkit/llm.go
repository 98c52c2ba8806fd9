package toolkit

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"BlockPay/internal/config"
)

// CompletionStream 是流式补全的接收端，*openai.ChatCompletionStream 满足该接口。
type CompletionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// LLM 发起一次流式补全。
type LLM interface {
	Stream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error)
}

// OpenAI 通过 OpenAI 兼容接口实现 LLM。
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI 根据配置创建客户端，未配置 API Key 时返回错误。
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Stream 实现 LLM。
func (o *OpenAI) Stream(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	req.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
