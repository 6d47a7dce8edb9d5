package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name == "" || p.Instructions == "" || p.Greeting == "" || p.Farewell == "" {
		t.Fatalf("default profile has empty fields: %+v", p)
	}
}

func TestLoadOverridesAndBackfills(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.json")
	payload := `{"name":"小北","greeting":"你好呀"}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "小北" || p.Greeting != "你好呀" {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if p.Instructions != Default().Instructions || p.Farewell != Default().Farewell {
		t.Fatalf("missing fields should backfill defaults: %+v", p)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persona.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed persona file")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing persona file")
	}
}

func TestSystemPromptMentionsWalletContext(t *testing.T) {
	p := Default()
	prompt := p.SystemPrompt("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "devnet")

	for _, fragment := range []string{
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"devnet",
		"100000000",
		p.Name,
	} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q: %s", fragment, prompt)
		}
	}
}
