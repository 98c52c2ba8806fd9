// Package toolkit is the agent runtime behind the orchestrator: an OpenAI
// compatible model that can call wallet, token, price and knowledge graph
// actions on behalf of the user, with per-thread conversation memory.
package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"BlockPay/internal/agent"
	"BlockPay/internal/memory"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
	"BlockPay/pkg/logger"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxRounds = 5
)

// DefaultSystemPrompt 描述智能体的身份与行为约束。
const DefaultSystemPrompt = "You are a helpful agent that can interact onchain using the wallet you were given. " +
	"You can check balances, transfer native and ERC20 tokens, wrap tokens, look up prices and query the " +
	"Intuition knowledge graph for creator trust scores. Before acting, get the wallet details to learn which " +
	"network you are on. If a request needs funds you do not have, ask the user to fund your wallet. " +
	"If something is not possible with your tools, say so and suggest what the user could do instead. " +
	"Be concise."

// Network 返回智能体使用的链。运行时应传入 provider.Pinned，
// 避免 /api/chain/switch 改变智能体钱包所在的网络。
type Network interface {
	Current() (provider.Chain, error)
}

// Kit 实现 agent.Runtime。
type Kit struct {
	llm          LLM
	signer       *web3.Signer
	network      Network
	memory       memory.Store
	providers    []ActionProvider
	model        string
	temperature  float32
	systemPrompt string
	maxRounds    int
	logger       *slog.Logger
}

// Option 定义可选的 Kit 配置。
type Option func(*Kit)

// WithModel 设置模型名称。
func WithModel(model string) Option {
	return func(k *Kit) {
		if model = strings.TrimSpace(model); model != "" {
			k.model = model
		}
	}
}

// WithTemperature 设置采样温度。
func WithTemperature(temperature float32) Option {
	return func(k *Kit) {
		k.temperature = temperature
	}
}

// WithSystemPrompt 替换默认的系统提示词。
func WithSystemPrompt(prompt string) Option {
	return func(k *Kit) {
		if strings.TrimSpace(prompt) != "" {
			k.systemPrompt = prompt
		}
	}
}

// WithMaxRounds 设置单轮对话中工具调用的最大轮数。
func WithMaxRounds(rounds int) Option {
	return func(k *Kit) {
		if rounds > 0 {
			k.maxRounds = rounds
		}
	}
}

// WithMemory 配置会话记忆。
func WithMemory(store memory.Store) Option {
	return func(k *Kit) {
		k.memory = store
	}
}

// WithProviders 追加动作提供者。
func WithProviders(providers ...ActionProvider) Option {
	return func(k *Kit) {
		for _, p := range providers {
			if p != nil {
				k.providers = append(k.providers, p)
			}
		}
	}
}

// WithLogger 替换默认日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(k *Kit) {
		if l != nil {
			k.logger = l
		}
	}
}

// New 创建 Kit。llm 为 nil 时 CreateAgent 会返回初始化错误。
func New(llm LLM, signer *web3.Signer, network Network, opts ...Option) *Kit {
	k := &Kit{
		llm:          llm,
		signer:       signer,
		network:      network,
		model:        defaultModel,
		systemPrompt: DefaultSystemPrompt,
		maxRounds:    defaultMaxRounds,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	if k.memory == nil {
		k.memory = memory.NewInMemoryStore(memory.DefaultMaxMessages)
	}
	if k.logger == nil {
		k.logger = logger.Named("toolkit")
	}
	return k
}

// CreateAgent 绑定当前网络与钱包，生成可用的智能体。
func (k *Kit) CreateAgent(ctx context.Context) (agent.Agent, error) {
	if k.llm == nil {
		return nil, errors.New("未配置大模型，请设置 OPENAI_API_KEY")
	}
	if k.signer == nil {
		return nil, errors.New("未配置钱包私钥")
	}
	if k.network == nil {
		return nil, errors.New("未配置区块链网络")
	}
	chain, err := k.network.Current()
	if err != nil {
		return nil, fmt.Errorf("获取当前网络失败: %w", err)
	}

	env := Env{Signer: k.signer, Client: chain.Client, Network: chain.Definition}
	actions := make(map[string]Action)
	for _, p := range k.providers {
		for _, action := range p.Actions(env) {
			if _, exists := actions[action.Name]; exists {
				return nil, fmt.Errorf("动作 %s 重复注册（%s）", action.Name, p.Name())
			}
			actions[action.Name] = action
		}
	}

	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		action := actions[name]
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        action.Name,
				Description: action.Description,
				Parameters:  action.Parameters,
			},
		})
	}

	return &session{kit: k, actions: actions, tools: tools}, nil
}

// session 是绑定了动作集合的智能体实例。
type session struct {
	kit     *Kit
	actions map[string]Action
	tools   []openai.Tool
}

// Stream 实现 agent.Agent。
func (s *session) Stream(ctx context.Context, input agent.Input, opts agent.Options) (agent.Stream, error) {
	threadID := opts.ThreadID
	if threadID == "" {
		threadID = agent.DefaultThreadID
	}
	return newChunkStream(ctx, func(ctx context.Context, emit func(agent.Chunk) error) error {
		return s.run(ctx, threadID, input, emit)
	}), nil
}

func (s *session) run(ctx context.Context, threadID string, input agent.Input, emit func(agent.Chunk) error) error {
	k := s.kit
	log := k.logger.With(slog.String("thread_id", threadID))

	history, err := k.memory.Load(ctx, threadID)
	if err != nil {
		log.Warn("加载会话历史失败", slog.Any("error", err))
		history = nil
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+len(input.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: k.systemPrompt})
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	turn := make([]memory.Message, 0, len(input.Messages)+1)
	for _, msg := range input.Messages {
		role := msg.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		content := contentString(msg.Content)
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
		turn = append(turn, memory.Message{Role: role, Content: content})
	}

	var reply strings.Builder
	for round := 0; round < k.maxRounds; round++ {
		text, calls, err := s.streamRound(ctx, messages, emit)
		if err != nil {
			return err
		}
		reply.WriteString(text)
		if len(calls) == 0 {
			s.remember(ctx, log, threadID, turn, reply.String())
			return nil
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})
		results := make([]agent.Message, 0, len(calls))
		for _, call := range calls {
			output := s.invoke(ctx, log, call)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    output,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
			results = append(results, agent.Message{Role: openai.ChatMessageRoleTool, Name: call.Function.Name, Content: output})
		}
		if err := emit(agent.Chunk{Tools: &agent.MessageBatch{Messages: results}}); err != nil {
			return err
		}
	}

	log.Warn("工具调用达到轮数上限", slog.Int("max_rounds", k.maxRounds))
	s.remember(ctx, log, threadID, turn, reply.String())
	return nil
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// streamRound 消费一次补全流：文本增量立即作为 agent 片段发出，工具调用按 index 拼接。
func (s *session) streamRound(ctx context.Context, messages []openai.ChatCompletionMessage, emit func(agent.Chunk) error) (string, []openai.ToolCall, error) {
	k := s.kit
	req := openai.ChatCompletionRequest{
		Model:       k.model,
		Temperature: k.temperature,
		Messages:    messages,
		Stream:      true,
	}
	if len(s.tools) > 0 {
		req.Tools = s.tools
	}

	stream, err := k.llm.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var text strings.Builder
	pending := make(map[int]*pendingCall)
	var order []int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			chunk := agent.Chunk{Agent: &agent.MessageBatch{Messages: []agent.Message{{
				Role:    openai.ChatMessageRoleAssistant,
				Content: delta.Content,
			}}}}
			if err := emit(chunk); err != nil {
				return "", nil, err
			}
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call, ok := pending[index]
			if !ok {
				call = &pendingCall{}
				pending[index] = call
				order = append(order, index)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
	}

	calls := make([]openai.ToolCall, 0, len(order))
	for _, index := range order {
		call := pending[index]
		calls = append(calls, openai.ToolCall{
			ID:   call.id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.name,
				Arguments: call.args.String(),
			},
		})
	}
	return text.String(), calls, nil
}

// invoke 执行动作并把结果编码为 JSON 文本，失败时把错误交给模型处理。
func (s *session) invoke(ctx context.Context, log *slog.Logger, call openai.ToolCall) string {
	action, ok := s.actions[call.Function.Name]
	if !ok {
		return encodeResult(nil, fmt.Errorf("未知的动作: %s", call.Function.Name))
	}
	log.Info("执行动作", slog.String("action", action.Name))
	result, err := action.Invoke(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Warn("动作执行失败", slog.String("action", action.Name), slog.Any("error", err))
	}
	return encodeResult(result, err)
}

func encodeResult(result any, err error) string {
	if err != nil {
		encoded, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(encoded)
	}
	encoded, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		encoded, _ = json.Marshal(map[string]string{"error": marshalErr.Error()})
	}
	return string(encoded)
}

func (s *session) remember(ctx context.Context, log *slog.Logger, threadID string, turn []memory.Message, reply string) {
	if strings.TrimSpace(reply) != "" {
		turn = append(turn, memory.Message{Role: openai.ChatMessageRoleAssistant, Content: reply})
	}
	if err := s.kit.memory.Append(ctx, threadID, turn...); err != nil {
		log.Warn("保存会话历史失败", slog.Any("error", err))
	}
}

func contentString(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
