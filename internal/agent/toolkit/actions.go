package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"BlockPay/internal/web3"
)

// Env 是动作执行时可用的钱包与网络。
type Env struct {
	Signer  *web3.Signer
	Client  web3.Client
	Network web3.ChainDefinition
}

// Action 是暴露给大模型的一个工具。
type Action struct {
	Name        string
	Description string
	Parameters  map[string]any
	Invoke      func(ctx context.Context, args json.RawMessage) (any, error)
}

// ActionProvider 按钱包环境提供一组动作。
type ActionProvider interface {
	Name() string
	Actions(env Env) []Action
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("参数格式错误: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s 不是有效的地址: %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func requireSigner(env Env) error {
	if env.Signer == nil {
		return errors.New("未配置钱包签名器")
	}
	if env.Client == nil {
		return errors.New("未连接区块链节点")
	}
	return nil
}

func decimalsOf(env Env) int {
	if env.Network.Currency.Decimals > 0 {
		return env.Network.Currency.Decimals
	}
	return 18
}
