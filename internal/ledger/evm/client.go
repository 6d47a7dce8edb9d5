package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"OpenWallet-Chain/internal/ledger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM devnet client.
type Config struct {
	Name    string
	RPCURL  string
	ChainID int64
	Notes   string
}

// Client implements the ledger.Client interface for EVM compatible devnets.
type Client struct {
	name    string
	notes   string
	chainID *big.Int

	mu        sync.Mutex
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
}

var _ ledger.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and verifies the chain identity
// when the definition pins one.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置链的 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接链节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		rpcClient.Close()
		return nil, fmt.Errorf("链 %s 实际链 ID 为 %s，与配置的 %d 不一致", cfg.Name, chainID, cfg.ChainID)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		chainID:   chainID,
		rpcClient: rpcClient,
		eth:       eth,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Client) backend() (*ethclient.Client, error) {
	if c == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth == nil {
		return nil, errors.New("链客户端已关闭")
	}
	return c.eth, nil
}

// ChainID returns the chain identity captured at dial time.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.chainID == nil {
		return nil, errors.New("未初始化的链客户端")
	}
	return new(big.Int).Set(c.chainID), nil
}

// BalanceAt reads the pending-state balance of the address in smallest units.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	eth, err := c.backend()
	if err != nil {
		return nil, err
	}
	balance, err := eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// PendingNonceAt returns the next usable sequence number for the address.
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	eth, err := c.backend()
	if err != nil {
		return 0, err
	}
	nonce, err := eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("查询交易序号失败: %w", err)
	}
	return nonce, nil
}

// SuggestGasTipCap asks the node for a priority fee suggestion.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	eth, err := c.backend()
	if err != nil {
		return nil, err
	}
	tip, err := eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询小费建议失败: %w", err)
	}
	return tip, nil
}

// LatestBaseFee reads the base fee of the latest block. Chains without a base
// fee report zero.
func (c *Client) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	eth, err := c.backend()
	if err != nil {
		return nil, err
	}
	header, err := eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询最新区块头失败: %w", err)
	}
	if header.BaseFee == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(header.BaseFee), nil
}

// EstimateGas estimates the gas cost of the call against pending state.
func (c *Client) EstimateGas(ctx context.Context, call ledger.CallRequest) (uint64, error) {
	eth, err := c.backend()
	if err != nil {
		return 0, err
	}
	gas, err := eth.EstimateGas(ctx, gethcore.CallMsg{
		From:  call.From,
		To:    call.To,
		Value: call.Value,
		Data:  call.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("估算 gas 失败: %w", err)
	}
	return gas, nil
}

// SendTransaction broadcasts a signed transaction. Node rejections are
// returned verbatim so callers can classify them.
func (c *Client) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	eth, err := c.backend()
	if err != nil {
		return err
	}
	if tx == nil {
		return errors.New("没有可发送的交易")
	}
	return eth.SendTransaction(ctx, tx)
}
