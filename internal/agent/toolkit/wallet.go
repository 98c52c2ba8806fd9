package toolkit

import (
	"context"
	"encoding/json"

	"BlockPay/internal/web3"
)

// WalletProvider 提供钱包详情与原生代币转账。
type WalletProvider struct{}

// Name 实现 ActionProvider。
func (WalletProvider) Name() string { return "wallet" }

// Actions 实现 ActionProvider。
func (WalletProvider) Actions(env Env) []Action {
	return []Action{
		{
			Name:        "get_wallet_details",
			Description: "Get the agent wallet address, the connected network and the native token balance.",
			Parameters:  objectSchema(nil, map[string]any{}),
			Invoke: func(ctx context.Context, _ json.RawMessage) (any, error) {
				if err := requireSigner(env); err != nil {
					return nil, err
				}
				info, err := env.Client.Info(ctx)
				if err != nil {
					return nil, err
				}
				balance, err := env.Client.BalanceAt(ctx, env.Signer.Address())
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"address": env.Signer.Address().Hex(),
					"network": map[string]any{
						"name":        info.Name,
						"chainId":     info.ChainID,
						"blockNumber": info.BlockNumber,
					},
					"balance":   balance.String(),
					"formatted": web3.FormatUnits(balance, info.Currency.Decimals),
					"symbol":    info.Currency.Symbol,
				}, nil
			},
		},
		{
			Name:        "native_transfer",
			Description: "Transfer the native token from the agent wallet. The value is expressed in whole units, e.g. 0.01.",
			Parameters: objectSchema([]string{"to", "value"}, map[string]any{
				"to":    stringProp("Destination address"),
				"value": stringProp("Amount in whole units of the native token"),
			}),
			Invoke: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					To    string `json:"to"`
					Value string `json:"value"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				if err := requireSigner(env); err != nil {
					return nil, err
				}
				to, err := parseAddress("to", args.To)
				if err != nil {
					return nil, err
				}
				value, err := web3.ParseUnits(args.Value, decimalsOf(env))
				if err != nil {
					return nil, err
				}
				hash, err := env.Client.Transfer(ctx, env.Signer, web3.TransferRequest{To: to, Value: value})
				if err != nil {
					return nil, err
				}
				return map[string]any{"hash": hash.Hex(), "to": to.Hex(), "value": args.Value}, nil
			},
		},
	}
}
