package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"OpenWallet-Chain/internal/config"
	"OpenWallet-Chain/internal/ledger"
	"OpenWallet-Chain/internal/ledger/evm"

	"github.com/ethereum/go-ethereum/common"
)

// Chain bundles everything the wallet gateway needs to act on one network.
type Chain struct {
	Name         string
	Client       ledger.Client
	Faucet       ledger.Faucet
	AssetFactory common.Address
	Description  string
}

// Registry manages the set of configured chains keyed by human readable names.
type Registry struct {
	defaultChain string
	chains       map[string]*Chain
}

// NewRegistry loads chain definitions and dials one client per chain.
func NewRegistry(ctx context.Context, cfg config.LedgerConfig) (*Registry, error) {
	defs, err := ledger.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	chains := make(map[string]*Chain)
	fail := func(err error) (*Registry, error) {
		for _, chain := range chains {
			chain.Client.Close()
		}
		return nil, err
	}

	for name, def := range defs.Chains {
		client, err := evm.NewClient(ctx, evm.Config{
			Name:    name,
			RPCURL:  def.RPCURL,
			ChainID: def.ChainID,
			Notes:   def.Description,
		})
		if err != nil {
			return fail(fmt.Errorf("初始化链 %s 失败: %w", name, err))
		}
		chain := &Chain{Name: name, Client: client, Description: def.Description}

		if factory := strings.TrimSpace(def.AssetFactory); factory != "" {
			if !common.IsHexAddress(factory) {
				client.Close()
				return fail(fmt.Errorf("链 %s 的资产工厂地址非法: %s", name, factory))
			}
			chain.AssetFactory = common.HexToAddress(factory)
		}

		if faucetURL := strings.TrimSpace(def.FaucetURL); faucetURL != "" {
			faucet, err := ledger.NewFaucetClient(ledger.FaucetConfig{
				BaseURL: faucetURL,
				Timeout: time.Duration(cfg.FaucetTimeoutSeconds) * time.Second,
			})
			if err != nil {
				client.Close()
				return fail(fmt.Errorf("初始化链 %s 的水龙头失败: %w", name, err))
			}
			chain.Faucet = faucet
		}

		chains[name] = chain
	}

	if len(chains) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	defaultChain := strings.TrimSpace(cfg.DefaultChain)
	if defaultChain == "" {
		names := make([]string, 0, len(chains))
		for name := range chains {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := chains[defaultChain]; !ok {
		return fail(fmt.Errorf("默认链 %s 未在配置中找到", defaultChain))
	}

	return &Registry{defaultChain: defaultChain, chains: chains}, nil
}

// Default returns the chain configured as the default network.
func (r *Registry) Default() (*Chain, error) {
	if r == nil {
		return nil, errors.New("未初始化的链注册表")
	}
	chain, ok := r.chains[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return chain, nil
}

// Chain returns the chain identified by name.
func (r *Registry) Chain(name string) (*Chain, bool) {
	if r == nil {
		return nil, false
	}
	chain, ok := r.chains[name]
	return chain, ok
}

// Chains returns the sorted list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every client managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, chain := range r.chains {
		if chain != nil && chain.Client != nil {
			chain.Client.Close()
		}
		delete(r.chains, name)
	}
}
