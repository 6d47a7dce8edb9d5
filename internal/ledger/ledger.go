package ledger

import (
	"context"
	"math/big"

	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 远端访问层的错误码。链上提交被节点拒绝与网络不可达是两类
// 不同的失败，调用方按错误码决定提示与重试策略。
const (
	CodeNetworkError    xerrors.Code = "NETWORK_ERROR"
	CodeSubmissionError xerrors.Code = "SUBMISSION_ERROR"
	CodeAddressNotFound xerrors.Code = "ADDRESS_NOT_FOUND"
)

func init() {
	xerrors.Register(CodeNetworkError, xerrors.Attributes{
		Message:   "网络请求失败",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeSubmissionError, xerrors.Attributes{
		Message:  "链上提交被拒绝",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeAddressNotFound, xerrors.Attributes{
		Message:  "账户不存在",
		Severity: xerrors.SeverityInfo,
	})
}

// CallRequest carries the fields needed for a gas estimation call so higher
// layers do not depend on the go-ethereum root package.
type CallRequest struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Client defines the narrow node surface the wallet gateway consumes. A single
// implementation handle is shared for the whole process lifetime.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	LatestBaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call CallRequest) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Faucet hands out development funds. Amounts are denominated in the smallest
// on-chain unit.
type Faucet interface {
	RequestFunds(ctx context.Context, addr common.Address, subunits *big.Int) (string, error)
}
