package toolkit

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testSigner(t *testing.T) *web3.Signer {
	t.Helper()
	signer, err := web3.NewSigner(testKey)
	require.NoError(t, err)
	return signer
}

type scriptedCompletion struct {
	responses []openai.ChatCompletionStreamResponse
	err       error
	pos       int
}

func (s *scriptedCompletion) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.pos >= len(s.responses) {
		if s.err != nil {
			return openai.ChatCompletionStreamResponse{}, s.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	resp := s.responses[s.pos]
	s.pos++
	return resp, nil
}

func (s *scriptedCompletion) Close() error { return nil }

type fakeLLM struct {
	mu       sync.Mutex
	rounds   [][]openai.ChatCompletionStreamResponse
	err      error
	repeat   bool
	requests []openai.ChatCompletionRequest
}

func (f *fakeLLM) Stream(_ context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rounds) == 0 {
		return &scriptedCompletion{}, nil
	}
	round := f.rounds[0]
	if !f.repeat {
		f.rounds = f.rounds[1:]
	}
	return &scriptedCompletion{responses: round}, nil
}

func textDelta(content string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{Choices: []openai.ChatCompletionStreamChoice{{
		Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
	}}}
}

func toolDelta(index int, id, name, args string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{Choices: []openai.ChatCompletionStreamChoice{{
		Delta: openai.ChatCompletionStreamChoiceDelta{ToolCalls: []openai.ToolCall{{
			Index:    &index,
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}}},
	}}}
}

type fakeChain struct {
	mu        sync.Mutex
	balance   *big.Int
	outputs   map[string][]byte
	transfers []web3.TransferRequest
}

func (c *fakeChain) Info(context.Context) (web3.ChainInfo, error) {
	return web3.ChainInfo{
		Name:        "Intuition Testnet",
		ChainID:     13579,
		BlockNumber: 42,
		Currency:    web3.Currency{Name: "Intuition", Symbol: "tTRUST", Decimals: 18},
	}, nil
}

func (c *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(13579), nil }

func (c *fakeChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) Call(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
	out, ok := c.outputs[hex.EncodeToString(data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (c *fakeChain) SendRawTransaction(context.Context, []byte) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

func (c *fakeChain) Transfer(_ context.Context, _ *web3.Signer, req web3.TransferRequest) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transfers = append(c.transfers, req)
	return common.HexToHash("0x01"), nil
}

func (c *fakeChain) Close() {}

func staticNetwork(t *testing.T, chain web3.Client, def web3.ChainDefinition) *provider.Registry {
	t.Helper()
	registry, err := provider.NewStaticRegistry("intuition", provider.Chain{Name: "intuition", Definition: def, Client: chain})
	require.NoError(t, err)
	return registry
}
