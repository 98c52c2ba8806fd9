package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"BlockPay/internal/web3"
)

// DefaultHermesURL 是 Pyth Hermes 服务的公开地址。
const DefaultHermesURL = "https://hermes.pyth.network"

// PythProvider 通过 Hermes 查询价格。
type PythProvider struct {
	http *resty.Client
}

// NewPythProvider 创建 Pyth 动作提供者，baseURL 为空时使用公开地址。
func NewPythProvider(baseURL string, timeout time.Duration) *PythProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultHermesURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &PythProvider{http: client}
}

// Name 实现 ActionProvider。
func (p *PythProvider) Name() string { return "pyth" }

type priceFeed struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
}

type priceUpdate struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int    `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// Actions 实现 ActionProvider。
func (p *PythProvider) Actions(Env) []Action {
	return []Action{
		{
			Name:        "pyth_fetch_price_feed",
			Description: "Look up the Pyth price feed id of a token symbol quoted in USD, e.g. BTC.",
			Parameters: objectSchema([]string{"tokenSymbol"}, map[string]any{
				"tokenSymbol": stringProp("Token symbol such as BTC or ETH"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					TokenSymbol string `json:"tokenSymbol"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				id, err := p.FeedID(ctx, args.TokenSymbol)
				if err != nil {
					return nil, err
				}
				return map[string]any{"tokenSymbol": strings.ToUpper(args.TokenSymbol), "priceFeedId": id}, nil
			},
		},
		{
			Name:        "pyth_fetch_price",
			Description: "Fetch the latest price of a Pyth price feed id.",
			Parameters: objectSchema([]string{"priceFeedId"}, map[string]any{
				"priceFeedId": stringProp("Price feed id returned by pyth_fetch_price_feed"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					PriceFeedID string `json:"priceFeedId"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				price, err := p.Price(ctx, args.PriceFeedID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"priceFeedId": args.PriceFeedID, "price": price}, nil
			},
		},
	}
}

// FeedID 返回 symbol/USD 的价格源 ID。
func (p *PythProvider) FeedID(ctx context.Context, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", errors.New("tokenSymbol 不能为空")
	}
	var feeds []priceFeed
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"query": symbol, "asset_type": "crypto"}).
		SetResult(&feeds).
		Get("/v2/price_feeds")
	if err != nil {
		return "", fmt.Errorf("查询 Pyth 价格源失败: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("查询 Pyth 价格源失败: HTTP %d", resp.StatusCode())
	}
	for _, feed := range feeds {
		if strings.EqualFold(feed.Attributes["base"], symbol) && strings.EqualFold(feed.Attributes["quote_currency"], "USD") {
			return feed.ID, nil
		}
	}
	return "", fmt.Errorf("未找到 %s 的价格源", symbol)
}

// Price 返回价格源的最新价格，已按 expo 换算为十进制字符串。
func (p *PythProvider) Price(ctx context.Context, feedID string) (string, error) {
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return "", errors.New("priceFeedId 不能为空")
	}
	var update priceUpdate
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("ids[]", feedID).
		SetResult(&update).
		Get("/v2/updates/price/latest")
	if err != nil {
		return "", fmt.Errorf("查询 Pyth 价格失败: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("查询 Pyth 价格失败: HTTP %d", resp.StatusCode())
	}
	if len(update.Parsed) == 0 {
		return "", fmt.Errorf("价格源 %s 没有数据", feedID)
	}

	price := update.Parsed[0].Price
	amount, ok := new(big.Int).SetString(price.Price, 10)
	if !ok {
		return "", fmt.Errorf("无法解析价格: %s", price.Price)
	}
	if price.Expo >= 0 {
		return new(big.Int).Mul(amount, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(price.Expo)), nil)).String(), nil
	}
	return web3.FormatUnits(amount, -price.Expo), nil
}
