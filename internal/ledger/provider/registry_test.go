package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"OpenWallet-Chain/internal/config"

	"github.com/ethereum/go-ethereum/common"
)

func chainIDServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_chainId" {
			t.Errorf("unexpected method during dial: %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]json.RawMessage{
			"jsonrpc": json.RawMessage(`"2.0"`),
			"id":      req.ID,
			"result":  json.RawMessage(`"0x539"`),
		})
	}))
}

func writeCatalogue(t *testing.T, dir, rpcURL string) string {
	t.Helper()
	path := filepath.Join(dir, "chains.yaml")
	payload := fmt.Sprintf(`chains:
  devnet:
    rpc_url: %s
    faucet_url: http://127.0.0.1:9999
    asset_factory: "0x4e59b44847b379578588920cA78FbF26c0B4956C"
    chain_id: 1337
    description: 本地开发网
`, rpcURL)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	return path
}

func TestNewRegistryBuildsDefaultChain(t *testing.T) {
	srv := chainIDServer(t)
	defer srv.Close()

	path := writeCatalogue(t, t.TempDir(), srv.URL)
	registry, err := NewRegistry(context.Background(), config.LedgerConfig{ChainConfig: path, DefaultChain: "devnet"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer registry.Close()

	chain, err := registry.Default()
	if err != nil {
		t.Fatalf("default chain: %v", err)
	}
	if chain.Name != "devnet" {
		t.Fatalf("unexpected default chain: %s", chain.Name)
	}
	if chain.Faucet == nil {
		t.Fatalf("expected faucet client for devnet")
	}
	if chain.AssetFactory != common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C") {
		t.Fatalf("unexpected asset factory: %s", chain.AssetFactory.Hex())
	}
	if got := registry.Chains(); len(got) != 1 || got[0] != "devnet" {
		t.Fatalf("unexpected chain listing: %v", got)
	}
}

func TestNewRegistryRejectsUnknownDefault(t *testing.T) {
	srv := chainIDServer(t)
	defer srv.Close()

	path := writeCatalogue(t, t.TempDir(), srv.URL)
	if _, err := NewRegistry(context.Background(), config.LedgerConfig{ChainConfig: path, DefaultChain: "mainnet"}); err == nil {
		t.Fatalf("expected error for unknown default chain")
	}
}

func TestNewRegistryRejectsEmptyCatalogue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	if err := os.WriteFile(path, []byte("chains: {}\n"), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	if _, err := NewRegistry(context.Background(), config.LedgerConfig{ChainConfig: path}); err == nil {
		t.Fatalf("expected error for empty catalogue")
	}
}
