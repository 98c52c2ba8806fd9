package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BlockPay/internal/agent"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/provider"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newChainRegistry(t *testing.T, chain web3.Client) *provider.Registry {
	t.Helper()
	def := web3.ChainDefinition{
		Name:     "Intuition Testnet",
		ChainID:  13579,
		Currency: web3.Currency{Name: "Intuition", Symbol: "tTRUST", Decimals: 18},
	}
	registry, err := provider.NewStaticRegistry("intuition",
		provider.Chain{Name: "intuition", Definition: def, Client: chain},
		provider.Chain{Name: "local", Definition: web3.ChainDefinition{Name: "Local", ChainID: 1337}, Client: chain},
	)
	require.NoError(t, err)
	return registry
}

func TestHealthAndRequestID(t *testing.T) {
	srv := NewServer(":0", Dependencies{})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestAgentEndpointValidation(t *testing.T) {
	handler := &recordingHandler{resp: agent.AgentResponse{Reply: "hi"}, code: http.StatusOK}
	srv := NewServer(":0", Dependencies{Agent: handler})

	cases := map[string]string{
		"missing message": `{}`,
		"blank message":   `{"userMessage":"   "}`,
		"numeric message": `{"userMessage":42}`,
		"null message":    `{"userMessage":null}`,
		"object wallet":   `{"userMessage":"hi","walletAddress":{}}`,
		"malformed json":  `{"userMessage":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/agent", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[agent.AgentResponse](t, rec)
			assert.Equal(t, agent.InvalidMessageText, resp.Error)
			assert.Empty(t, resp.Reply)
		})
	}
	assert.Empty(t, handler.calls)
}

func TestAgentEndpointRejectsOversizedBody(t *testing.T) {
	handler := &recordingHandler{resp: agent.AgentResponse{Reply: "hi"}, code: http.StatusOK}
	srv := NewServer(":0", Dependencies{Agent: handler})

	body := `{"userMessage":"` + strings.Repeat("a", maxAgentBodyBytes) + `"}`
	rec := do(t, srv.Handler(), http.MethodPost, "/api/agent", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, agent.InvalidMessageText, decode[agent.AgentResponse](t, rec).Error)
	assert.Empty(t, handler.calls)
}

func TestAgentEndpointEndToEnd(t *testing.T) {
	runtime := agent.RuntimeFunc(func(context.Context) (agent.Agent, error) { return echoAgent{}, nil })
	orchestrator := agent.New(runtime, agent.WithTimeout(time.Second))
	srv := NewServer(":0", Dependencies{Agent: orchestrator})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/agent", map[string]any{
		"userMessage":   "  What is my balance?  ",
		"walletAddress": "0xABC",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[agent.AgentResponse](t, rec)
	assert.Equal(t, "echo: User wallet: 0xABC\nUser message: What is my balance?", resp.Reply)
	assert.Empty(t, resp.Error)
	assert.NotContains(t, rec.Body.String(), `"error"`)
}

func TestAgentEndpointInitFailure(t *testing.T) {
	runtime := agent.RuntimeFunc(func(context.Context) (agent.Agent, error) {
		return nil, errors.New("OPENAI_API_KEY missing")
	})
	srv := NewServer(":0", Dependencies{Agent: agent.New(runtime)})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/agent", `{"userMessage":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, agent.InitFailureText, decode[agent.AgentResponse](t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "OPENAI_API_KEY")
}

func TestListExchanges(t *testing.T) {
	store := &stubExchanges{items: []agent.Exchange{{ID: "1", ThreadID: "0xabc", Outcome: "reply"}}}
	srv := NewServer(":0", Dependencies{Exchanges: store})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/exchanges?thread=0xabc&limit=5000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Exchanges []agent.Exchange `json:"exchanges"`
	}](t, rec)
	require.Len(t, body.Exchanges, 1)
	assert.Equal(t, "0xabc", store.thread)
	assert.Equal(t, maxExchangeLimit, store.limit)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/exchanges?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, NewServer(":0", Dependencies{}).Handler(), http.MethodGet, "/api/exchanges", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	signer, err := web3.NewSigner(testKey)
	require.NoError(t, err)
	balance, _ := new(big.Int).SetString("1500000000000000000", 10)
	chain := &stubChain{balance: balance}
	registry := newChainRegistry(t, chain)
	srv := NewServer(":0", Dependencies{Chains: registry, Signer: signer})
	h := srv.Handler()

	t.Run("chain info", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/chain", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		info := decode[web3.ChainInfo](t, rec)
		assert.Equal(t, int64(13579), info.ChainID)
		assert.Equal(t, "tTRUST", info.Currency.Symbol)
	})

	t.Run("wallet address", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/wallet", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, signer.Address().Hex(), decode[map[string]string](t, rec)["address"])
	})

	t.Run("balance", func(t *testing.T) {
		addr := signer.Address().Hex()
		rec := do(t, h, http.MethodGet, "/api/wallet/"+addr+"/balance", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[balanceResponse](t, rec)
		assert.Equal(t, "1500000000000000000", got.Wei)
		assert.Equal(t, "1.5", got.Formatted)
		assert.Equal(t, "tTRUST", got.Symbol)

		rec = do(t, h, http.MethodGet, "/api/wallet/not-an-address/balance", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("send raw transaction", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/wallet/transactions", map[string]string{"rawTransaction": "0xf86c01"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, chain.sent, 1)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["hash"])

		rec = do(t, h, http.MethodPost, "/api/wallet/transactions", map[string]string{"rawTransaction": "zz"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream failure hides cause", func(t *testing.T) {
		chain.sendErr = errors.New("nonce too low")
		defer func() { chain.sendErr = nil }()
		rec := do(t, h, http.MethodPost, "/api/wallet/transactions", map[string]string{"rawTransaction": "0xf86c01"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "nonce too low")
	})

	t.Run("switch chain", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/chain/switch", map[string]string{"chain": "local"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "local", registry.CurrentName())

		rec = do(t, h, http.MethodGet, "/api/chains", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[struct {
			Chains  []string `json:"chains"`
			Default string   `json:"default"`
		}](t, rec)
		assert.Equal(t, []string{"intuition", "local"}, body.Chains)
		assert.Equal(t, "local", body.Default)

		rec = do(t, h, http.MethodPost, "/api/chain/switch", map[string]string{"chain": "mars"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWalletEndpointsWithoutDependencies(t *testing.T) {
	h := NewServer(":0", Dependencies{}).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/wallet", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/chain", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(":0", Dependencies{}).Handler()
	do(t, h, http.MethodGet, "/healthz", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blockpay_http_requests_total")
}
