package gateway

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	xerrors "OpenWallet-Chain/internal/errors"
	"OpenWallet-Chain/internal/ledger"
	"OpenWallet-Chain/internal/ledger/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeClient struct {
	chainID      *big.Int
	balance      *big.Int
	balanceErr   error
	pendingNonce uint64
	nonceCalls   int
	tip          *big.Int
	baseFee      *big.Int
	gasEstimate  uint64
	estimated    []ledger.CallRequest
	sent         []*types.Transaction
	sendErr      error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:     big.NewInt(1337),
		balance:     big.NewInt(0),
		tip:         big.NewInt(2_000_000_000),
		baseFee:     big.NewInt(7_000_000_000),
		gasEstimate: 100_000,
	}
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	f.nonceCalls++
	return f.pendingNonce, nil
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeClient) LatestBaseFee(ctx context.Context) (*big.Int, error) { return f.baseFee, nil }

func (f *fakeClient) EstimateGas(ctx context.Context, call ledger.CallRequest) (uint64, error) {
	f.estimated = append(f.estimated, call)
	return f.gasEstimate, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) Close() {}

type fakeFaucet struct {
	addr     common.Address
	subunits *big.Int
	calls    int
	err      error
}

func (f *fakeFaucet) RequestFunds(ctx context.Context, addr common.Address, subunits *big.Int) (string, error) {
	f.calls++
	f.addr = addr
	f.subunits = new(big.Int).Set(subunits)
	if f.err != nil {
		return "", f.err
	}
	return "0xfaucet", nil
}

func newTestGateway(t *testing.T, client ledger.Client, faucet ledger.Faucet, factory common.Address) *Gateway {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	chain := &provider.Chain{Name: "devnet", Client: client, Faucet: faucet, AssetFactory: factory}
	g, err := New(context.Background(), NewWalletFromKey(key), chain)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g
}

func TestNormalizeAddress(t *testing.T) {
	canonical, err := NormalizeAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canonical.Hex() != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Fatalf("checksum form mismatch: %s", canonical.Hex())
	}

	// 再次解析规范形式必须得到同一地址。
	again, err := NormalizeAddress(canonical.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != canonical {
		t.Fatalf("normalization is not idempotent: %s vs %s", again.Hex(), canonical.Hex())
	}

	for _, raw := range []string{"", "   ", "0x123", "not-an-address", "0xzzzzb6053f3e94c9b9a09f33669435e7ef1beaed"} {
		if _, err := NormalizeAddress(raw); xerrors.CodeOf(err) != CodeInvalidAddress {
			t.Fatalf("expected invalid address for %q, got %v", raw, err)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		subunits int64
		want     string
	}{
		{0, "0"},
		{100_000_000, "1"},
		{150_000_000, "1.5"},
		{1, "0.00000001"},
		{123_450_000_000, "1234.5"},
	}
	for _, tc := range cases {
		if got := FormatUnits(big.NewInt(tc.subunits)); got != tc.want {
			t.Fatalf("FormatUnits(%d) = %q, want %q", tc.subunits, got, tc.want)
		}
	}
	if got := FormatUnits(nil); got != "0" {
		t.Fatalf("FormatUnits(nil) = %q", got)
	}
}

func TestFundAccountConvertsToSubunits(t *testing.T) {
	faucet := &fakeFaucet{}
	g := newTestGateway(t, newFakeClient(), faucet, common.Address{})

	target := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	txn, err := g.FundAccount(context.Background(), target, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn != "0xfaucet" {
		t.Fatalf("unexpected txn hash: %s", txn)
	}
	if faucet.addr != target {
		t.Fatalf("faucet received wrong address: %s", faucet.addr.Hex())
	}
	if faucet.subunits.String() != "500000000" {
		t.Fatalf("expected 5 tokens as 500000000 subunits, got %s", faucet.subunits)
	}
}

func TestFundAccountCeiling(t *testing.T) {
	faucet := &fakeFaucet{}
	g := newTestGateway(t, newFakeClient(), faucet, common.Address{})

	_, err := g.FundAccount(context.Background(), g.WalletAddress(), MaxFaucetUnits+1)
	if xerrors.CodeOf(err) != CodeAmountTooLarge {
		t.Fatalf("expected amount too large, got %v", err)
	}
	if faucet.calls != 0 {
		t.Fatalf("over-limit request must not reach the faucet")
	}

	if _, err := g.FundAccount(context.Background(), g.WalletAddress(), 0); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for zero amount, got %v", err)
	}

	// 恰好在上限的请求放行。
	if _, err := g.FundAccount(context.Background(), g.WalletAddress(), MaxFaucetUnits); err != nil {
		t.Fatalf("limit amount must pass: %v", err)
	}
}

func TestFundAccountWithoutFaucet(t *testing.T) {
	g := newTestGateway(t, newFakeClient(), nil, common.Address{})
	_, err := g.FundAccount(context.Background(), g.WalletAddress(), 1)
	if xerrors.CodeOf(err) != ledger.CodeSubmissionError {
		t.Fatalf("expected submission error when faucet missing, got %v", err)
	}
}

func TestBalanceWrapsTransportFailure(t *testing.T) {
	client := newFakeClient()
	client.balance = big.NewInt(150_000_000)
	g := newTestGateway(t, client, nil, common.Address{})

	balance, err := g.Balance(context.Background(), g.WalletAddress())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.String() != "150000000" {
		t.Fatalf("unexpected balance: %s", balance)
	}

	client.balanceErr = errors.New("connection refused")
	if _, err := g.Balance(context.Background(), g.WalletAddress()); xerrors.CodeOf(err) != ledger.CodeNetworkError {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestTransferSequencesNonces(t *testing.T) {
	client := newFakeClient()
	client.pendingNonce = 7
	g := newTestGateway(t, client, nil, common.Address{})

	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	first, err := g.Transfer(context.Background(), to, big.NewInt(100))
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	second, err := g.Transfer(context.Background(), to, big.NewInt(200))
	if err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	if first == "" || second == "" || first == second {
		t.Fatalf("expected two distinct txn hashes, got %q and %q", first, second)
	}

	if len(client.sent) != 2 {
		t.Fatalf("expected two submitted transactions, got %d", len(client.sent))
	}
	if client.sent[0].Nonce() != 7 || client.sent[1].Nonce() != 8 {
		t.Fatalf("nonces must advance in submission order, got %d then %d",
			client.sent[0].Nonce(), client.sent[1].Nonce())
	}
	if client.nonceCalls != 1 {
		t.Fatalf("pending nonce should be fetched once, got %d calls", client.nonceCalls)
	}

	tx := client.sent[0]
	if tx.To() == nil || *tx.To() != to {
		t.Fatalf("unexpected recipient: %v", tx.To())
	}
	if tx.Value().String() != "100" {
		t.Fatalf("unexpected value: %s", tx.Value())
	}
	if tx.Gas() != transferGasLimit {
		t.Fatalf("unexpected gas limit: %d", tx.Gas())
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	client := newFakeClient()
	client.sendErr = errors.New("insufficient funds for gas * price + value")
	g := newTestGateway(t, client, nil, common.Address{})

	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	_, err := g.Transfer(context.Background(), to, big.NewInt(100))
	if xerrors.CodeOf(err) != CodeInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// 提交失败后缓存的序列号作废，下一次重新向节点获取。
	client.sendErr = nil
	if _, err := g.Transfer(context.Background(), to, big.NewInt(100)); err != nil {
		t.Fatalf("retry transfer: %v", err)
	}
	if client.nonceCalls != 2 {
		t.Fatalf("nonce must be re-primed after failure, got %d calls", client.nonceCalls)
	}
}

func TestTransferRejectsNonPositive(t *testing.T) {
	client := newFakeClient()
	g := newTestGateway(t, client, nil, common.Address{})
	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	if _, err := g.Transfer(context.Background(), to, big.NewInt(0)); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for zero, got %v", err)
	}
	if _, err := g.Transfer(context.Background(), to, nil); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for nil, got %v", err)
	}
	if client.nonceCalls != 0 || len(client.sent) != 0 {
		t.Fatalf("rejected transfer must not touch the node")
	}
}

func TestCreateFungibleAssetBuildsFactoryCall(t *testing.T) {
	client := newFakeClient()
	factory := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	g := newTestGateway(t, client, nil, factory)

	txn, err := g.CreateFungibleAsset(context.Background(), "Hooty Dooty", "HOOTY",
		"https://example.com/icon.png", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn == "" {
		t.Fatalf("expected txn hash")
	}

	if len(client.estimated) != 1 {
		t.Fatalf("expected one gas estimation, got %d", len(client.estimated))
	}
	if client.estimated[0].To == nil || *client.estimated[0].To != factory {
		t.Fatalf("estimation must target the factory, got %v", client.estimated[0].To)
	}

	if len(client.sent) != 1 {
		t.Fatalf("expected one submitted transaction, got %d", len(client.sent))
	}
	tx := client.sent[0]
	if tx.To() == nil || *tx.To() != factory {
		t.Fatalf("transaction must target the factory, got %v", tx.To())
	}
	if want := client.gasEstimate + client.gasEstimate/5; tx.Gas() != want {
		t.Fatalf("expected gas %d with headroom, got %d", want, tx.Gas())
	}

	method := assetFactoryABI.Methods["createFungibleAsset"]
	data := tx.Data()
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("calldata does not select createFungibleAsset")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack calldata: %v", err)
	}
	got := []string{values[0].(string), values[1].(string), values[2].(string), values[3].(string)}
	want := []string{"Hooty Dooty", "HOOTY", "https://example.com/icon.png", "https://example.com"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argument %d mismatch: %q vs %q", i, got[i], want[i])
		}
	}
}

func TestCreateFungibleAssetRequiresFactory(t *testing.T) {
	g := newTestGateway(t, newFakeClient(), nil, common.Address{})
	_, err := g.CreateFungibleAsset(context.Background(), "Token", "TKN", "", "")
	if xerrors.CodeOf(err) != ledger.CodeSubmissionError {
		t.Fatalf("expected submission error without factory, got %v", err)
	}
}
