package toolkit

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BlockPay/internal/agent"
	"BlockPay/internal/memory"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
)

func drain(t *testing.T, stream agent.Stream) ([]agent.Chunk, error) {
	t.Helper()
	defer stream.Close()
	var chunks []agent.Chunk
	for {
		chunk, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}

func userInput(text string) agent.Input {
	return agent.Input{Messages: []agent.Message{{Role: "user", Content: text}}}
}

func TestCreateAgentRequiresLLM(t *testing.T) {
	kit := New(nil, testSigner(t), staticNetwork(t, &fakeChain{balance: big.NewInt(0)}, web3.ChainDefinition{}))
	_, err := kit.CreateAgent(context.Background())
	assert.Error(t, err)

	kit = New(&fakeLLM{}, nil, nil)
	_, err = kit.CreateAgent(context.Background())
	assert.Error(t, err)
}

func TestStreamRunsToolsThenAnswers(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(1_230_000_000_000_000_000)}
	llm := &fakeLLM{rounds: [][]openai.ChatCompletionStreamResponse{
		{
			toolDelta(0, "call_1", "get_wallet_details", ""),
			toolDelta(0, "", "", "{}"),
		},
		{
			textDelta("Your balance is "),
			textDelta("1.23 tTRUST"),
		},
	}}
	store := memory.NewInMemoryStore(10)
	kit := New(llm, testSigner(t), staticNetwork(t, chain, web3.ChainDefinition{Name: "Intuition Testnet"}),
		WithMemory(store), WithProviders(WalletProvider{}, ERC20Provider{}), WithModel("gpt-test"))

	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)
	stream, err := ag.Stream(context.Background(), userInput("What is my balance?"), agent.Options{ThreadID: "0xabc"})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	require.NotNil(t, chunks[0].Tools)
	toolOutput := chunks[0].Tools.Messages[0].Content.(string)
	assert.Contains(t, toolOutput, `"formatted":"1.23"`)
	assert.Contains(t, toolOutput, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

	var reply string
	for _, chunk := range chunks[1:] {
		text, ok := chunk.AgentContent()
		require.True(t, ok)
		reply += text
	}
	assert.Equal(t, "Your balance is 1.23 tTRUST", reply)

	// 同一 Stream 结束后继续返回 io.EOF。
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	require.Len(t, llm.requests, 2)
	first := llm.requests[0]
	assert.Equal(t, "gpt-test", first.Model)
	assert.Len(t, first.Tools, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, first.Messages[0].Role)
	second := llm.requests[1].Messages
	assert.Equal(t, openai.ChatMessageRoleTool, second[len(second)-1].Role)
	assert.Equal(t, "call_1", second[len(second)-1].ToolCallID)

	history, err := store.Load(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []memory.Message{
		{Role: "user", Content: "What is my balance?"},
		{Role: "assistant", Content: "Your balance is 1.23 tTRUST"},
	}, history)
}

func TestPinnedNetworkIgnoresRegistrySwitch(t *testing.T) {
	home := &fakeChain{balance: big.NewInt(0)}
	other := &fakeChain{balance: big.NewInt(0)}
	registry, err := provider.NewStaticRegistry("intuition",
		provider.Chain{Name: "intuition", Definition: web3.ChainDefinition{Currency: web3.Currency{Decimals: 18}}, Client: home},
		provider.Chain{Name: "mainnet", Definition: web3.ChainDefinition{Currency: web3.Currency{Decimals: 18}}, Client: other},
	)
	require.NoError(t, err)
	pinned, err := registry.Pin("")
	require.NoError(t, err)

	llm := &fakeLLM{rounds: [][]openai.ChatCompletionStreamResponse{
		{toolDelta(0, "call_1", "native_transfer", `{"to":"0x2222222222222222222222222222222222222222","value":"0.01"}`)},
		{textDelta("sent")},
	}}
	kit := New(llm, testSigner(t), pinned, WithProviders(WalletProvider{}))

	require.NoError(t, registry.Switch("mainnet"))

	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)
	stream, err := ag.Stream(context.Background(), userInput("send 0.01"), agent.Options{ThreadID: "0xabc"})
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	assert.Len(t, home.transfers, 1)
	assert.Empty(t, other.transfers)
}

func TestStreamIncludesThreadHistory(t *testing.T) {
	store := memory.NewInMemoryStore(10)
	require.NoError(t, store.Append(context.Background(), agent.DefaultThreadID,
		memory.Message{Role: "user", Content: "hi"},
		memory.Message{Role: "assistant", Content: "hello"},
	))
	llm := &fakeLLM{rounds: [][]openai.ChatCompletionStreamResponse{{textDelta("again")}}}
	kit := New(llm, testSigner(t), staticNetwork(t, &fakeChain{balance: big.NewInt(0)}, web3.ChainDefinition{}), WithMemory(store))

	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)
	stream, err := ag.Stream(context.Background(), userInput("once more"), agent.Options{})
	require.NoError(t, err)
	_, err = drain(t, stream)
	require.NoError(t, err)

	messages := llm.requests[0].Messages
	require.Len(t, messages, 4)
	assert.Equal(t, "hello", messages[2].Content)
	assert.Equal(t, "once more", messages[3].Content)
	assert.Nil(t, llm.requests[0].Tools)
}

func TestStreamPassesLLMErrorsThrough(t *testing.T) {
	llm := &fakeLLM{err: errors.New("Invalid value for 'content': expected a string, got null.")}
	kit := New(llm, testSigner(t), staticNetwork(t, &fakeChain{balance: big.NewInt(0)}, web3.ChainDefinition{}))

	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)
	stream, err := ag.Stream(context.Background(), userInput("hi"), agent.Options{})
	require.NoError(t, err)

	_, err = drain(t, stream)
	require.Error(t, err)
	assert.Equal(t, agent.InvalidFormatText, agent.Classify(err))
}

func TestStreamStopsAfterMaxRounds(t *testing.T) {
	llm := &fakeLLM{
		repeat: true,
		rounds: [][]openai.ChatCompletionStreamResponse{{toolDelta(0, "call", "missing_action", "{}")}},
	}
	kit := New(llm, testSigner(t), staticNetwork(t, &fakeChain{balance: big.NewInt(0)}, web3.ChainDefinition{}), WithMaxRounds(2))

	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)
	stream, err := ag.Stream(context.Background(), userInput("loop"), agent.Options{})
	require.NoError(t, err)

	chunks, err := drain(t, stream)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Tools.Messages[0].Content, "missing_action")
	assert.Len(t, llm.requests, 2)
}

func TestStreamHonoursCancellation(t *testing.T) {
	llm := &fakeLLM{rounds: [][]openai.ChatCompletionStreamResponse{{textDelta("a"), textDelta("b")}}}
	kit := New(llm, testSigner(t), staticNetwork(t, &fakeChain{balance: big.NewInt(0)}, web3.ChainDefinition{}))
	ag, err := kit.CreateAgent(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := ag.Stream(ctx, userInput("hi"), agent.Options{})
	require.NoError(t, err)
	cancel()

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, stream.Close())
}
