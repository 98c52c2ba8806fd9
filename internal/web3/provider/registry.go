package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"BlockPay/internal/config"
	"BlockPay/internal/web3"
	"BlockPay/internal/web3/ethereum"
)

// ErrUnknownChain 表示请求的链不在注册表中。
var ErrUnknownChain = errors.New("未知的链")

// Chain pairs a client with its catalogue entry.
type Chain struct {
	Name       string
	Definition web3.ChainDefinition
	Client     web3.Client
}

// Registry manages a set of chain clients keyed by human readable names and
// tracks which one is currently selected.
type Registry struct {
	mu      sync.RWMutex
	current string
	chains  map[string]Chain
}

// NewRegistry loads chain definitions and instantiates concrete clients. When
// no catalogue file is configured the single chain described by cfg is used.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	if len(defs.Chains) == 0 {
		defs.Chains["default"] = web3.ChainDefinition{
			Type:        "evm",
			Name:        cfg.ChainName,
			ChainID:     cfg.ChainID,
			RPCURL:      cfg.RPCURL,
			WETHAddress: cfg.WETHAddress,
			Currency: web3.Currency{
				Name:     cfg.CurrencyName,
				Symbol:   cfg.CurrencySymbol,
				Decimals: cfg.Decimals,
			},
		}
		defs.Default = "default"
	}

	registry := &Registry{chains: make(map[string]Chain, len(defs.Chains))}
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		if chainType != "evm" {
			registry.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:     def.Name,
			RPCURL:   def.RPCURL,
			ChainID:  def.ChainID,
			Currency: def.Currency,
		})
		if err != nil {
			registry.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		registry.chains[name] = Chain{Name: name, Definition: def, Client: client}
	}

	selected := defs.Default
	if selected == "" {
		selected = cfg.DefaultChain
	}
	if err := registry.Switch(selected); err != nil {
		if selected != "" {
			registry.Close()
			return nil, err
		}
		registry.current = registry.Chains()[0]
	}
	return registry, nil
}

// NewStaticRegistry builds a registry from pre-constructed chains.
func NewStaticRegistry(current string, chains ...Chain) (*Registry, error) {
	if len(chains) == 0 {
		return nil, errors.New("未配置任何链")
	}
	registry := &Registry{chains: make(map[string]Chain, len(chains))}
	for _, chain := range chains {
		registry.chains[chain.Name] = chain
	}
	if current == "" {
		current = chains[0].Name
	}
	if err := registry.Switch(current); err != nil {
		return nil, err
	}
	return registry, nil
}

// Current returns the selected chain.
func (r *Registry) Current() (Chain, error) {
	if r == nil {
		return Chain{}, errors.New("未初始化的链客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.chains[r.current]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", ErrUnknownChain, r.current)
	}
	return chain, nil
}

// Switch selects the chain used by wallet endpoints.
func (r *Registry) Switch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chains[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	r.current = name
	return nil
}

// Chain returns the chain identified by name.
func (r *Registry) Chain(name string) (Chain, bool) {
	if r == nil {
		return Chain{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.chains[name]
	return chain, ok
}

// Pinned is a read-only view of one chain. Switch on the registry does not
// affect it.
type Pinned struct {
	chain Chain
}

// Current returns the pinned chain.
func (p Pinned) Current() (Chain, error) {
	return p.chain, nil
}

// Name returns the name of the pinned chain.
func (p Pinned) Name() string {
	return p.chain.Name
}

// Pin resolves name once and returns a view fixed to that chain. An empty name
// pins the chain selected at call time.
func (r *Registry) Pin(name string) (Pinned, error) {
	if r == nil {
		return Pinned{}, errors.New("未初始化的链客户端注册表")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.current
	}
	chain, ok := r.chains[name]
	if !ok {
		return Pinned{}, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return Pinned{chain: chain}, nil
}

// CurrentName returns the name of the selected chain.
func (r *Registry) CurrentName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Chains returns the sorted list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, chain := range r.chains {
		if chain.Client != nil {
			chain.Client.Close()
		}
		delete(r.chains, name)
	}
}
