package gateway

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"OpenWallet-Chain/internal/action"
	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// 护栏上限，约束模型给出的资产元数据。
const (
	maxAssetNameLen   = 64
	maxAssetSymbolLen = 10
)

// Actions 返回网关暴露给模型的动作集合，注册顺序即返回顺序。
func (g *Gateway) Actions() []action.Spec {
	return []action.Spec{
		g.fundAction(),
		g.balanceAction(),
		g.transferAction(),
		g.createAssetAction(),
	}
}

// resolveAddress 把可选的地址参数解析成规范地址，缺省回落到钱包自身。
func (g *Gateway) resolveAddress(args action.Args, name string) (common.Address, error) {
	raw := strings.TrimSpace(args.StringOr(name, ""))
	if raw == "" {
		return g.wallet.Address(), nil
	}
	return NormalizeAddress(raw)
}

func (g *Gateway) fundAction() action.Spec {
	return action.Spec{
		Name: "fund_account",
		Description: "Request test tokens from the faucet. Amounts are whole tokens, " +
			"at most 1000 per request.",
		Params: []action.Param{
			{
				Name:        "amount",
				Type:        action.ParamInteger,
				Description: "Whole tokens to request, between 1 and 1000.",
				Required:    true,
			},
			{
				Name:        "address",
				Type:        action.ParamString,
				Description: "Recipient address in hex form. Defaults to the agent wallet when omitted.",
			},
		},
		Guardrail: func(args action.Args) error {
			amount, err := args.Uint("amount")
			if err != nil {
				return err
			}
			if amount == 0 {
				return xerrors.New(action.CodeGuardrailViolation, "充值数量必须大于 0")
			}
			return nil
		},
		Handler: func(ctx context.Context, args action.Args) (*action.Outcome, error) {
			amount, err := args.Uint("amount")
			if err != nil {
				return nil, err
			}
			addr, err := g.resolveAddress(args, "address")
			if err != nil {
				return nil, err
			}
			txn, err := g.FundAccount(ctx, addr, amount)
			if err != nil {
				return nil, err
			}
			return &action.Outcome{
				Value:   txn,
				Summary: fmt.Sprintf("已向 %s 充值 %d 个代币，交易 %s", addr.Hex(), amount, txn),
			}, nil
		},
	}
}

func (g *Gateway) balanceAction() action.Spec {
	return action.Spec{
		Name: "get_balance",
		Description: "Look up the token balance of an address. " +
			"Returns the amount in the smallest on-chain unit.",
		Params: []action.Param{
			{
				Name:        "address",
				Type:        action.ParamString,
				Description: "Address to inspect in hex form. Defaults to the agent wallet when omitted.",
			},
		},
		Handler: func(ctx context.Context, args action.Args) (*action.Outcome, error) {
			addr, err := g.resolveAddress(args, "address")
			if err != nil {
				return nil, err
			}
			balance, err := g.Balance(ctx, addr)
			if err != nil {
				return nil, err
			}
			return &action.Outcome{
				Value: balance.String(),
				Summary: fmt.Sprintf("地址 %s 当前余额 %s 个代币（%s 最小单位）",
					addr.Hex(), FormatUnits(balance), balance.String()),
			}, nil
		},
	}
}

func (g *Gateway) transferAction() action.Spec {
	return action.Spec{
		Name: "transfer",
		Description: "Send tokens from the agent wallet to a recipient. " +
			"The amount is denominated in the smallest on-chain unit " +
			"(100000000 subunits equal one whole token).",
		Params: []action.Param{
			{
				Name:        "recipient",
				Type:        action.ParamString,
				Description: "Recipient address in hex form.",
				Required:    true,
			},
			{
				Name:        "amount",
				Type:        action.ParamInteger,
				Description: "Amount to send in the smallest on-chain unit, greater than zero.",
				Required:    true,
			},
		},
		Guardrail: func(args action.Args) error {
			amount, err := args.Uint("amount")
			if err != nil {
				return err
			}
			if amount == 0 {
				return xerrors.New(action.CodeGuardrailViolation, "转账金额必须大于 0")
			}
			return nil
		},
		Handler: func(ctx context.Context, args action.Args) (*action.Outcome, error) {
			raw, err := args.String("recipient")
			if err != nil {
				return nil, err
			}
			to, err := NormalizeAddress(raw)
			if err != nil {
				return nil, err
			}
			amount, err := args.Uint("amount")
			if err != nil {
				return nil, err
			}
			subunits := new(big.Int).SetUint64(amount)
			txn, err := g.Transfer(ctx, to, subunits)
			if err != nil {
				return nil, err
			}
			return &action.Outcome{
				Value: txn,
				Summary: fmt.Sprintf("已向 %s 转账 %s 个代币，交易 %s",
					to.Hex(), FormatUnits(subunits), txn),
			}, nil
		},
	}
}

func (g *Gateway) createAssetAction() action.Spec {
	return action.Spec{
		Name: "create_fungible_asset",
		Description: "Create a new fungible asset owned by the agent wallet. " +
			"Name and symbol are required, icon and project links are optional.",
		Params: []action.Param{
			{
				Name:        "name",
				Type:        action.ParamString,
				Description: "Human readable asset name, at most 64 characters.",
				Required:    true,
			},
			{
				Name:        "symbol",
				Type:        action.ParamString,
				Description: "Short ticker symbol, at most 10 characters.",
				Required:    true,
			},
			{
				Name:        "icon_uri",
				Type:        action.ParamString,
				Description: "Link to the asset icon.",
			},
			{
				Name:        "project_uri",
				Type:        action.ParamString,
				Description: "Link to the project page.",
			},
		},
		Guardrail: func(args action.Args) error {
			name, err := args.String("name")
			if err != nil {
				return err
			}
			if n := utf8.RuneCountInString(strings.TrimSpace(name)); n == 0 || n > maxAssetNameLen {
				return xerrors.Newf(action.CodeGuardrailViolation,
					"资产名称长度必须在 1 到 %d 之间", maxAssetNameLen)
			}
			symbol, err := args.String("symbol")
			if err != nil {
				return err
			}
			if n := utf8.RuneCountInString(strings.TrimSpace(symbol)); n == 0 || n > maxAssetSymbolLen {
				return xerrors.Newf(action.CodeGuardrailViolation,
					"资产符号长度必须在 1 到 %d 之间", maxAssetSymbolLen)
			}
			return nil
		},
		Handler: func(ctx context.Context, args action.Args) (*action.Outcome, error) {
			name, err := args.String("name")
			if err != nil {
				return nil, err
			}
			symbol, err := args.String("symbol")
			if err != nil {
				return nil, err
			}
			iconURI := args.StringOr("icon_uri", "")
			projectURI := args.StringOr("project_uri", "")

			txn, err := g.CreateFungibleAsset(ctx, strings.TrimSpace(name),
				strings.TrimSpace(symbol), iconURI, projectURI)
			if err != nil {
				return nil, err
			}
			return &action.Outcome{
				Value:   txn,
				Summary: fmt.Sprintf("已创建资产 %s（%s），交易 %s", name, symbol, txn),
			}, nil
		},
	}
}
