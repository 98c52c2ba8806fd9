// Package blockpay is a typed Go client for the BlockPay HTTP API.
package blockpay

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultHTTPTimeout is slightly above the server-side agent bound so that a
// timed out exchange still returns the server's answer.
const DefaultHTTPTimeout = 35 * time.Second

// Client wraps the HTTP interactions with the BlockPay REST API.
type Client struct {
	http *resty.Client
}

// AgentReply is the body returned by POST /api/agent.
type AgentReply struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// Currency describes the native token of a chain.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainInfo describes the chain currently selected on the server.
type ChainInfo struct {
	Name        string   `json:"name"`
	ChainID     int64    `json:"chainId"`
	BlockNumber uint64   `json:"blockNumber"`
	Currency    Currency `json:"currency"`
}

// Chains lists the configured chains and the one currently selected.
type Chains struct {
	Chains  []string `json:"chains"`
	Default string   `json:"default"`
}

// Balance is the native balance of an address.
type Balance struct {
	Address   string `json:"address"`
	Wei       string `json:"wei"`
	Formatted string `json:"formatted"`
	Symbol    string `json:"symbol"`
}

// Exchange is one recorded agent exchange.
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

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("blockpay api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("blockpay api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the BlockPay API. When httpClient is nil
// a default client with DefaultHTTPTimeout is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	var rc *resty.Client
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	} else {
		rc = resty.New().SetTimeout(DefaultHTTPTimeout)
	}
	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetError(&APIError{})
	return &Client{http: rc}
}

// Ask sends one chat message to the agent. wallet may be empty.
func (c *Client) Ask(ctx context.Context, message, wallet string) (AgentReply, error) {
	body := map[string]any{"userMessage": message}
	if wallet != "" {
		body["walletAddress"] = wallet
	}
	var reply AgentReply
	err := c.do(c.http.R().SetContext(ctx).SetBody(body).SetResult(&reply), http.MethodPost, "/api/agent")
	return reply, err
}

// Chain returns the currently selected chain.
func (c *Client) Chain(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	err := c.do(c.http.R().SetContext(ctx).SetResult(&info), http.MethodGet, "/api/chain")
	return info, err
}

// Chains lists the configured chains.
func (c *Client) Chains(ctx context.Context) (Chains, error) {
	var chains Chains
	err := c.do(c.http.R().SetContext(ctx).SetResult(&chains), http.MethodGet, "/api/chains")
	return chains, err
}

// SwitchChain selects the chain used by the wallet endpoints.
func (c *Client) SwitchChain(ctx context.Context, name string) error {
	return c.do(c.http.R().SetContext(ctx).SetBody(map[string]string{"chain": name}), http.MethodPost, "/api/chain/switch")
}

// Wallet returns the agent's wallet address.
func (c *Client) Wallet(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	err := c.do(c.http.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/api/wallet")
	return out.Address, err
}

// Balance returns the native balance of address.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	var balance Balance
	req := c.http.R().SetContext(ctx).SetPathParam("address", address).SetResult(&balance)
	err := c.do(req, http.MethodGet, "/api/wallet/{address}/balance")
	return balance, err
}

// SendRawTransaction broadcasts a signed, 0x-prefixed transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw string) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	req := c.http.R().SetContext(ctx).SetBody(map[string]string{"rawTransaction": raw}).SetResult(&out)
	err := c.do(req, http.MethodPost, "/api/wallet/transactions")
	return out.Hash, err
}

// Exchanges lists recent agent exchanges, optionally filtered by thread.
func (c *Client) Exchanges(ctx context.Context, thread string, limit int) ([]Exchange, error) {
	var out struct {
		Exchanges []Exchange `json:"exchanges"`
	}
	req := c.http.R().SetContext(ctx).SetResult(&out)
	if thread != "" {
		req.SetQueryParam("thread", thread)
	}
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	err := c.do(req, http.MethodGet, "/api/exchanges")
	return out.Exchanges, err
}

func (c *Client) do(req *resty.Request, method, endpoint string) error {
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}
