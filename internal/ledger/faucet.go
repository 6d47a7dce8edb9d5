package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFaucetTimeout bounds faucet calls so an unresponsive sidecar cannot
// stall the conversation indefinitely.
const DefaultFaucetTimeout = 15 * time.Second

// FaucetConfig describes how to reach a devnet faucet endpoint.
type FaucetConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FaucetClient talks to the faucet REST sidecar that mints development funds.
type FaucetClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Faucet = (*FaucetClient)(nil)

// NewFaucetClient validates the configuration and returns a ready client.
func NewFaucetClient(cfg FaucetConfig) (*FaucetClient, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "水龙头地址不能为空")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultFaucetTimeout
	}
	return &FaucetClient{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type faucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type faucetResponse struct {
	TxnHash string `json:"txn_hash"`
}

// RequestFunds asks the faucet to credit the address with the given amount in
// smallest units. It returns the faucet's submission hash without waiting for
// the transfer to finalize on chain.
func (c *FaucetClient) RequestFunds(ctx context.Context, addr common.Address, subunits *big.Int) (string, error) {
	if subunits == nil || subunits.Sign() <= 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "注资金额必须为正数")
	}

	payload, err := json.Marshal(faucetRequest{Address: addr.Hex(), Amount: subunits.String()})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化水龙头请求失败")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fund", bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(CodeNetworkError, err, "构造水龙头请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(CodeNetworkError, err, "调用水龙头失败")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", xerrors.Wrap(CodeNetworkError, err, "读取水龙头响应失败")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", xerrors.New(CodeAddressNotFound,
			fmt.Sprintf("水龙头不认识账户 %s", addr.Hex()),
			xerrors.WithMetadata("status", fmt.Sprintf("%d", resp.StatusCode)))
	case resp.StatusCode >= 500:
		return "", xerrors.New(CodeSubmissionError,
			fmt.Sprintf("水龙头返回 %d: %s", resp.StatusCode, bodySnippet(data)),
			xerrors.WithRetryable(true))
	case resp.StatusCode >= 400:
		return "", xerrors.New(CodeSubmissionError,
			fmt.Sprintf("水龙头拒绝请求 (%d): %s", resp.StatusCode, bodySnippet(data)))
	}

	var out faucetResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", xerrors.Wrap(CodeSubmissionError, err, "解析水龙头响应失败")
	}
	if strings.TrimSpace(out.TxnHash) == "" {
		return "", xerrors.New(CodeSubmissionError, "水龙头未返回交易哈希")
	}
	return out.TxnHash, nil
}

func bodySnippet(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
