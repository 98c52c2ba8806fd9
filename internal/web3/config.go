package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Default string                     `yaml:"default"`
	Chains  map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single EVM network the wallet can talk to.
type ChainDefinition struct {
	Type        string   `yaml:"type"`
	Name        string   `yaml:"name"`
	ChainID     int64    `yaml:"chain_id"`
	RPCURL      string   `yaml:"rpc_url"`
	Currency    Currency `yaml:"currency"`
	WETHAddress string   `yaml:"weth_address"`
	Description string   `yaml:"description"`
}

// Currency describes the native token of a chain.
type Currency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int    `yaml:"decimals" json:"decimals"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if def.Currency.Decimals == 0 {
			def.Currency.Decimals = 18
		}
		if def.Name == "" {
			def.Name = name
		}
		defs.Chains[name] = def
	}
	return defs, nil
}
