package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	xerrors "OpenWallet-Chain/internal/errors"
	"OpenWallet-Chain/internal/ledger"
	"OpenWallet-Chain/internal/ledger/provider"
	"OpenWallet-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 钱包网关的错误码。
const (
	CodeInvalidAddress    xerrors.Code = "INVALID_ADDRESS"
	CodeAmountTooLarge    xerrors.Code = "AMOUNT_TOO_LARGE"
	CodeInsufficientFunds xerrors.Code = "INSUFFICIENT_FUNDS"
)

func init() {
	xerrors.Register(CodeInvalidAddress, xerrors.Attributes{
		Message:  "地址格式非法",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAmountTooLarge, xerrors.Attributes{
		Message:  "金额超出单次上限",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:  "账户余额不足",
		Severity: xerrors.SeverityInfo,
	})
}

const (
	// SubunitsPerUnit 是一个整单位代币对应的最小单位数量。
	SubunitsPerUnit = 100_000_000

	// MaxFaucetUnits 是单次水龙头充值的整单位上限。
	MaxFaucetUnits = 1000

	transferGasLimit = 21000
)

const assetFactoryABIJSON = `[{"type":"function","name":"createFungibleAsset","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"iconURI","type":"string"},{"name":"projectURI","type":"string"}],"outputs":[{"name":"asset","type":"address"}]}]`

var assetFactoryABI = mustParseABI(assetFactoryABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("解析内置 ABI 失败: %v", err))
	}
	return parsed
}

// Gateway 把一条链上的四类能力（充值、查询、转账、发资产）封装成
// 同步方法。所有交易复用同一个节点句柄与同一把钱包密钥，序列号在
// 本地缓存并按提交顺序递增，提交失败后作废重新拉取。
type Gateway struct {
	wallet  *Wallet
	chain   *provider.Chain
	chainID *big.Int

	mu          sync.Mutex
	nonce       uint64
	noncePrimed bool
}

// New 构造钱包网关并确认节点可达。
func New(ctx context.Context, wallet *Wallet, chain *provider.Chain) (*Gateway, error) {
	if wallet == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供钱包凭据")
	}
	if chain == nil || chain.Client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供链客户端")
	}
	chainID, err := chain.Client.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(ledger.CodeNetworkError, err, "获取链标识失败")
	}
	return &Gateway{wallet: wallet, chain: chain, chainID: chainID}, nil
}

// WalletAddress 返回网关使用的钱包地址。
func (g *Gateway) WalletAddress() common.Address {
	return g.wallet.Address()
}

// ChainName 返回网关所在链的名称。
func (g *Gateway) ChainName() string {
	return g.chain.Name
}

// NormalizeAddress 解析文本地址并返回规范形式。空串与非法十六进制
// 都会得到 INVALID_ADDRESS，而不是让解析错误向上冒泡。
func NormalizeAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Address{}, xerrors.New(CodeInvalidAddress, "地址为空")
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, xerrors.Newf(CodeInvalidAddress, "非法地址: %s", trimmed)
	}
	return common.HexToAddress(trimmed), nil
}

// FormatUnits 把最小单位金额渲染成整单位文本，小数部分去掉末尾零。
func FormatUnits(subunits *big.Int) string {
	if subunits == nil {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(subunits, big.NewInt(SubunitsPerUnit), new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	text := fmt.Sprintf("%s.%08d", whole.String(), frac.Int64())
	return strings.TrimRight(text, "0")
}

// FundAccount 通过水龙头给地址充值 units 个整单位代币。超过上限的
// 请求在发起任何网络调用之前就被拒绝。
func (g *Gateway) FundAccount(ctx context.Context, addr common.Address, units uint64) (string, error) {
	if units == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "充值数量必须为正整数")
	}
	if units > MaxFaucetUnits {
		return "", xerrors.Newf(CodeAmountTooLarge,
			"单次充值上限 %d 个代币，收到 %d", MaxFaucetUnits, units)
	}
	if g.chain.Faucet == nil {
		return "", xerrors.Newf(ledger.CodeSubmissionError, "链 %s 未配置水龙头", g.chain.Name)
	}

	subunits := new(big.Int).Mul(new(big.Int).SetUint64(units), big.NewInt(SubunitsPerUnit))
	txID, err := g.chain.Faucet.RequestFunds(ctx, addr, subunits)
	if err != nil {
		return "", err
	}
	logger.Audit().Info("水龙头充值已提交",
		slog.String("chain", g.chain.Name),
		slog.String("address", addr.Hex()),
		slog.Uint64("units", units),
		slog.String("tx_hash", txID),
	)
	return txID, nil
}

// Balance 查询地址余额，返回最小单位金额。
func (g *Gateway) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := g.chain.Client.BalanceAt(ctx, addr)
	if err != nil {
		return nil, xerrors.Wrap(ledger.CodeNetworkError, err, "查询余额失败")
	}
	return balance, nil
}

// Transfer 从钱包向 to 转出 subunits 个最小单位，返回交易哈希。
func (g *Gateway) Transfer(ctx context.Context, to common.Address, subunits *big.Int) (string, error) {
	if subunits == nil || subunits.Sign() <= 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须为正")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	nonce, err := g.nextNonce(ctx)
	if err != nil {
		return "", err
	}
	tipCap, feeCap, err := g.feeTerms(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       transferGasLimit,
		To:        &to,
		Value:     subunits,
	})
	signed, err := g.wallet.SignTx(tx, g.chainID)
	if err != nil {
		return "", err
	}

	if err := g.chain.Client.SendTransaction(ctx, signed); err != nil {
		g.noncePrimed = false
		return "", classifySubmission(err)
	}
	g.nonce = nonce + 1
	hash := signed.Hash().Hex()
	logger.Audit().Info("转账交易已提交",
		slog.String("chain", g.chain.Name),
		slog.String("to", to.Hex()),
		slog.String("subunits", subunits.String()),
		slog.Uint64("nonce", nonce),
		slog.String("tx_hash", hash),
	)
	return hash, nil
}

// CreateFungibleAsset 调用链上资产工厂创建一种同质化资产，四个入参
// 均为字符串，返回交易哈希。
func (g *Gateway) CreateFungibleAsset(ctx context.Context, name, symbol, iconURI, projectURI string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(symbol) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "资产名称与符号不能为空")
	}
	factory := g.chain.AssetFactory
	if factory == (common.Address{}) {
		return "", xerrors.Newf(ledger.CodeSubmissionError, "链 %s 未配置资产工厂合约", g.chain.Name)
	}

	calldata, err := assetFactoryABI.Pack("createFungibleAsset", name, symbol, iconURI, projectURI)
	if err != nil {
		return "", xerrors.Wrap(ledger.CodeSubmissionError, err, "编码资产创建调用失败")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	gas, err := g.chain.Client.EstimateGas(ctx, ledger.CallRequest{
		From: g.wallet.Address(),
		To:   &factory,
		Data: calldata,
	})
	if err != nil {
		return "", xerrors.Wrap(ledger.CodeSubmissionError, err, "资产创建调用预估失败")
	}
	gas += gas / 5

	nonce, err := g.nextNonce(ctx)
	if err != nil {
		return "", err
	}
	tipCap, feeCap, err := g.feeTerms(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &factory,
		Data:      calldata,
	})
	signed, err := g.wallet.SignTx(tx, g.chainID)
	if err != nil {
		return "", err
	}

	if err := g.chain.Client.SendTransaction(ctx, signed); err != nil {
		g.noncePrimed = false
		return "", classifySubmission(err)
	}
	g.nonce = nonce + 1
	hash := signed.Hash().Hex()
	logger.Audit().Info("资产创建交易已提交",
		slog.String("chain", g.chain.Name),
		slog.String("symbol", symbol),
		slog.Uint64("nonce", nonce),
		slog.String("tx_hash", hash),
	)
	return hash, nil
}

// nextNonce 返回下一笔交易应使用的序列号。首次调用向节点取
// pending 序列号，之后在本地递增，调用方必须持有 g.mu。
func (g *Gateway) nextNonce(ctx context.Context) (uint64, error) {
	if !g.noncePrimed {
		nonce, err := g.chain.Client.PendingNonceAt(ctx, g.wallet.Address())
		if err != nil {
			return 0, xerrors.Wrap(ledger.CodeNetworkError, err, "获取账户序列号失败")
		}
		g.nonce = nonce
		g.noncePrimed = true
	}
	return g.nonce, nil
}

func (g *Gateway) feeTerms(ctx context.Context) (tipCap, feeCap *big.Int, err error) {
	tipCap, err = g.chain.Client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, xerrors.Wrap(ledger.CodeNetworkError, err, "获取小费建议失败")
	}
	baseFee, err := g.chain.Client.LatestBaseFee(ctx)
	if err != nil {
		return nil, nil, xerrors.Wrap(ledger.CodeNetworkError, err, "获取基础费失败")
	}
	return tipCap, new(big.Int).Add(baseFee, tipCap), nil
}

// classifySubmission 把节点拒绝交易的原因翻译成对话层能理解的
// 错误码。余额不足由远端判定，这里只做文本识别。
func classifySubmission(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient balance") {
		return xerrors.Wrap(CodeInsufficientFunds, err, "账户余额不足以完成交易")
	}
	return xerrors.Wrap(ledger.CodeSubmissionError, err, "交易被节点拒绝")
}
