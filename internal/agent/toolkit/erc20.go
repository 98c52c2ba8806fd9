package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"BlockPay/internal/web3"
)

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const wethABIJSON = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]}
]`

var (
	erc20ABI = mustParseABI(erc20ABIJSON)
	wethABI  = mustParseABI(wethABIJSON)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("解析 ABI 失败: %v", err))
	}
	return parsed
}

// ERC20Provider 提供 ERC20 余额查询与转账。
type ERC20Provider struct{}

// Name 实现 ActionProvider。
func (ERC20Provider) Name() string { return "erc20" }

// Actions 实现 ActionProvider。
func (ERC20Provider) Actions(env Env) []Action {
	return []Action{
		{
			Name:        "erc20_get_balance",
			Description: "Get the ERC20 token balance of an address. Defaults to the agent wallet.",
			Parameters: objectSchema([]string{"contractAddress"}, map[string]any{
				"contractAddress": stringProp("ERC20 token contract address"),
				"address":         stringProp("Holder address, defaults to the agent wallet"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					ContractAddress string `json:"contractAddress"`
					Address         string `json:"address"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if err := requireSigner(env); err != nil {
					return nil, err
				}
				token, err := parseAddress("contractAddress", args.ContractAddress)
				if err != nil {
					return nil, err
				}
				holder := env.Signer.Address()
				if args.Address != "" {
					if holder, err = parseAddress("address", args.Address); err != nil {
						return nil, err
					}
				}

				balance, err := erc20Balance(ctx, env.Client, token, holder)
				if err != nil {
					return nil, err
				}
				decimals, err := erc20Decimals(ctx, env.Client, token)
				if err != nil {
					return nil, err
				}
				symbol, _ := erc20Symbol(ctx, env.Client, token)
				return map[string]any{
					"address":   holder.Hex(),
					"token":     token.Hex(),
					"balance":   balance.String(),
					"formatted": web3.FormatUnits(balance, decimals),
					"symbol":    symbol,
				}, nil
			},
		},
		{
			Name:        "erc20_transfer",
			Description: "Transfer ERC20 tokens from the agent wallet. The amount is expressed in whole token units.",
			Parameters: objectSchema([]string{"contractAddress", "to", "amount"}, map[string]any{
				"contractAddress": stringProp("ERC20 token contract address"),
				"to":              stringProp("Destination address"),
				"amount":          stringProp("Amount in whole token units"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					ContractAddress string `json:"contractAddress"`
					To              string `json:"to"`
					Amount          string `json:"amount"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if err := requireSigner(env); err != nil {
					return nil, err
				}
				token, err := parseAddress("contractAddress", args.ContractAddress)
				if err != nil {
					return nil, err
				}
				to, err := parseAddress("to", args.To)
				if err != nil {
					return nil, err
				}
				decimals, err := erc20Decimals(ctx, env.Client, token)
				if err != nil {
					return nil, err
				}
				amount, err := web3.ParseUnits(args.Amount, decimals)
				if err != nil {
					return nil, err
				}
				data, err := erc20ABI.Pack("transfer", to, amount)
				if err != nil {
					return nil, fmt.Errorf("编码 transfer 调用失败: %w", err)
				}
				hash, err := env.Client.Transfer(ctx, env.Signer, web3.TransferRequest{To: token, Data: data})
				if err != nil {
					return nil, err
				}
				return map[string]any{"hash": hash.Hex(), "token": token.Hex(), "to": to.Hex(), "amount": args.Amount}, nil
			},
		},
	}
}

func erc20Balance(ctx context.Context, client web3.Client, token, holder common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}
	out, err := callAndUnpack(ctx, client, token, "balanceOf", data)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("balanceOf 返回值类型异常")
	}
	return balance, nil
}

func erc20Decimals(ctx context.Context, client web3.Client, token common.Address) (int, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := callAndUnpack(ctx, client, token, "decimals", data)
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, errors.New("decimals 返回值类型异常")
	}
	return int(decimals), nil
}

func erc20Symbol(ctx context.Context, client web3.Client, token common.Address) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	out, err := callAndUnpack(ctx, client, token, "symbol", data)
	if err != nil {
		return "", err
	}
	symbol, _ := out[0].(string)
	return symbol, nil
}

func callAndUnpack(ctx context.Context, client web3.Client, token common.Address, method string, data []byte) ([]any, error) {
	raw, err := client.Call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 返回值失败: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s 没有返回值", method)
	}
	return out, nil
}

// WETHProvider 提供原生代币到 WETH 的包装。
type WETHProvider struct{}

// Name 实现 ActionProvider。
func (WETHProvider) Name() string { return "weth" }

// Actions 实现 ActionProvider。
func (WETHProvider) Actions(env Env) []Action {
	return []Action{
		{
			Name:        "wrap_eth",
			Description: "Wrap the native token into WETH on networks with a configured WETH contract.",
			Parameters: objectSchema([]string{"amountToWrap"}, map[string]any{
				"amountToWrap": stringProp("Amount in whole units of the native token"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					AmountToWrap string `json:"amountToWrap"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if err := requireSigner(env); err != nil {
					return nil, err
				}
				if env.Network.WETHAddress == "" {
					return nil, errors.New("当前网络未配置 WETH 合约")
				}
				weth, err := parseAddress("weth_address", env.Network.WETHAddress)
				if err != nil {
					return nil, err
				}
				amount, err := web3.ParseUnits(args.AmountToWrap, decimalsOf(env))
				if err != nil {
					return nil, err
				}
				data, err := wethABI.Pack("deposit")
				if err != nil {
					return nil, fmt.Errorf("编码 deposit 调用失败: %w", err)
				}
				hash, err := env.Client.Transfer(ctx, env.Signer, web3.TransferRequest{To: weth, Value: amount, Data: data})
				if err != nil {
					return nil, err
				}
				return map[string]any{"hash": hash.Hex(), "weth": weth.Hex(), "amount": args.AmountToWrap}, nil
			},
		},
	}
}
