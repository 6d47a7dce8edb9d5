package gateway

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"

	xerrors "OpenWallet-Chain/internal/errors"
	"OpenWallet-Chain/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet 持有进程唯一的签名凭据。构造之后只读，网关的所有交易
// 都由这把密钥签名。
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// LoadWallet 从环境变量读取钱包私钥。变量未设置且配置允许临时钱包
// 时，生成一把只存活于本进程的随机密钥，适合对接本地开发链。
func LoadWallet(cfg WalletConfig) (*Wallet, error) {
	envName := strings.TrimSpace(cfg.PrivateKeyEnv)
	if envName == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未指定钱包私钥的环境变量名")
	}

	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		if !cfg.AllowEphemeral {
			return nil, xerrors.Newf(xerrors.CodeInitializationFailure,
				"环境变量 %s 未设置钱包私钥", envName)
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "生成临时钱包失败")
		}
		return NewWalletFromKey(key), nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析钱包私钥失败")
	}
	return NewWalletFromKey(key), nil
}

// WalletConfig 控制钱包凭据的加载方式。
type WalletConfig struct {
	PrivateKeyEnv  string
	AllowEphemeral bool
}

// NewWalletFromKey 用现成的密钥构造钱包。
func NewWalletFromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address 返回钱包地址。
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx 使用钱包密钥对交易签名。
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, xerrors.Wrap(ledger.CodeSubmissionError, err, "交易签名失败")
	}
	return signed, nil
}
