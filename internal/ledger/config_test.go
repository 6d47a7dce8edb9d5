package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	payload := `chains:
  devnet:
    rpc_url: http://127.0.0.1:8545
    faucet_url: http://127.0.0.1:8081
    asset_factory: "0x4e59b44847b379578588920cA78FbF26c0B4956C"
    chain_id: 1337
    description: 本地开发网
  staging:
    rpc_url: http://10.0.0.2:8545
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write chains: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load chains: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(defs.Chains))
	}

	devnet := defs.Chains["devnet"]
	if devnet.RPCURL != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected rpc url: %s", devnet.RPCURL)
	}
	if devnet.FaucetURL != "http://127.0.0.1:8081" {
		t.Fatalf("unexpected faucet url: %s", devnet.FaucetURL)
	}
	if devnet.ChainID != 1337 {
		t.Fatalf("unexpected chain id: %d", devnet.ChainID)
	}
	if defs.Chains["staging"].FaucetURL != "" {
		t.Fatalf("staging should have no faucet")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("empty path should not fail: %v", err)
	}
	if len(defs.Chains) != 0 {
		t.Fatalf("expected empty catalogue")
	}
}

func TestLoadChainDefinitionsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	if err := os.WriteFile(path, []byte("chains: ["), 0o644); err != nil {
		t.Fatalf("write chains: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
