package api

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"BlockPay/internal/agent"
	xerrors "BlockPay/internal/errors"
	"BlockPay/internal/knowledge"
	"BlockPay/internal/web3"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []agent.AgentRequest
	resp  agent.AgentResponse
	code  int
}

func (h *recordingHandler) Handle(_ context.Context, req agent.AgentRequest) (agent.AgentResponse, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, req)
	return h.resp, h.code
}

type sliceStream struct {
	chunks []agent.Chunk
}

func (s *sliceStream) Next(context.Context) (agent.Chunk, error) {
	if len(s.chunks) == 0 {
		return agent.Chunk{}, io.EOF
	}
	next := s.chunks[0]
	s.chunks = s.chunks[1:]
	return next, nil
}

func (s *sliceStream) Close() error { return nil }

type echoAgent struct{}

func (echoAgent) Stream(_ context.Context, input agent.Input, _ agent.Options) (agent.Stream, error) {
	text, _ := input.Messages[0].Content.(string)
	return &sliceStream{chunks: []agent.Chunk{
		{Agent: &agent.MessageBatch{Messages: []agent.Message{{Content: "echo: "}}}},
		{Tools: &agent.MessageBatch{Messages: []agent.Message{{Content: "ignored"}}}},
		{Agent: &agent.MessageBatch{Messages: []agent.Message{{Content: text}}}},
	}}, nil
}

type stubExchanges struct {
	items  []agent.Exchange
	thread string
	limit  int
	err    error
}

func (s *stubExchanges) ListLatest(_ context.Context, threadID string, limit int) ([]agent.Exchange, error) {
	s.thread, s.limit = threadID, limit
	return s.items, s.err
}

type stubChain struct {
	balance *big.Int
	sent    [][]byte
	sendErr error
}

func (c *stubChain) Info(context.Context) (web3.ChainInfo, error) {
	return web3.ChainInfo{
		Name:        "Intuition Testnet",
		ChainID:     13579,
		BlockNumber: 7,
		Currency:    web3.Currency{Name: "Intuition", Symbol: "tTRUST", Decimals: 18},
	}, nil
}

func (c *stubChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(13579), nil }

func (c *stubChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *stubChain) Call(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, errors.New("not supported")
}

func (c *stubChain) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	c.sent = append(c.sent, raw)
	return common.HexToHash("0xabc"), nil
}

func (c *stubChain) Transfer(context.Context, *web3.Signer, web3.TransferRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("not supported")
}

func (c *stubChain) Close() {}

type stubGraph struct {
	atoms   map[string]knowledge.Atom
	triples []knowledge.Triple
	down    bool
	jobs    []knowledge.JobCompletion
}

func (g *stubGraph) unavailable() error {
	return xerrors.Wrap(knowledge.CodeGraphUnavailable, errors.New("connection refused"), "")
}

func (g *stubGraph) GetAtom(_ context.Context, id string) (*knowledge.Atom, error) {
	if g.down {
		return nil, g.unavailable()
	}
	atom, ok := g.atoms[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "atom 不存在: "+id)
	}
	return &atom, nil
}

func (g *stubGraph) CreateAtom(_ context.Context, atomType string, data map[string]any) (*knowledge.Atom, error) {
	if g.down {
		return nil, g.unavailable()
	}
	return &knowledge.Atom{ID: "atom-new", Type: atomType, Data: data}, nil
}

func (g *stubGraph) GetTriples(_ context.Context, subject, predicate string) ([]knowledge.Triple, error) {
	var out []knowledge.Triple
	for _, tr := range g.triples {
		if (subject == "" || tr.Subject == subject) && (predicate == "" || tr.Predicate == predicate) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (g *stubGraph) CreateTriple(_ context.Context, subject, predicate, object string) (*knowledge.Triple, error) {
	tr := knowledge.Triple{ID: "triple-new", Subject: subject, Predicate: predicate, Object: object}
	g.triples = append(g.triples, tr)
	return &tr, nil
}

func (g *stubGraph) GetTrustScore(_ context.Context, atomID string) (*knowledge.TrustScore, error) {
	return &knowledge.TrustScore{AtomID: atomID, Score: 0.75, Votes: 4}, nil
}

func (g *stubGraph) GetTopCreators(_ context.Context, limit int) ([]knowledge.TrustScore, error) {
	out := make([]knowledge.TrustScore, 0, limit)
	for i := 0; i < limit && i < 3; i++ {
		out = append(out, knowledge.TrustScore{AtomID: "creator", Score: float64(3 - i)})
	}
	return out, nil
}

func (g *stubGraph) CreateArtworkAtom(_ context.Context, creatorAtomID string, artwork knowledge.Artwork) (*knowledge.Atom, error) {
	if creatorAtomID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "creatorAtomId 不能为空")
	}
	return &knowledge.Atom{ID: "artwork-1", Type: "Artwork", Data: map[string]any{"title": artwork.Title}}, nil
}

func (g *stubGraph) RecordJobCompletion(_ context.Context, job knowledge.JobCompletion) error {
	g.jobs = append(g.jobs, job)
	return nil
}
