package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"OpenWallet-Chain/internal/action"
	"OpenWallet-Chain/internal/agent"
	"OpenWallet-Chain/internal/config"
	"OpenWallet-Chain/internal/dispatch"
	"OpenWallet-Chain/internal/gateway"
	"OpenWallet-Chain/internal/ledger/provider"
	"OpenWallet-Chain/internal/llm"
	"OpenWallet-Chain/internal/llm/openai"
	"OpenWallet-Chain/internal/profile"
	"OpenWallet-Chain/pkg/logger"
)

// main 是钱包对话助手的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "walletchat 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("WALLETCHAT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "walletchat.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	wallet, err := gateway.LoadWallet(gateway.WalletConfig{
		PrivateKeyEnv:  cfg.Wallet.PrivateKeyEnv,
		AllowEphemeral: cfg.Wallet.AllowEphemeral,
	})
	if err != nil {
		return err
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chain, err := chainRegistry.Default()
	if err != nil {
		return err
	}

	gw, err := gateway.New(ctx, wallet, chain)
	if err != nil {
		return err
	}

	registry := action.NewRegistry()
	for _, spec := range gw.Actions() {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}

	dispatcher := dispatch.New(dispatch.WithLogger(logger.Named("dispatch")))
	defer dispatcher.Close()

	persona, err := profile.Load(cfg.Agent.Profile)
	if err != nil {
		return err
	}

	ag := agent.New(llmClient, registry, dispatcher,
		agent.WithPersona(persona),
		agent.WithInstructions(persona.SystemPrompt(wallet.Address().Hex(), gw.ChainName())),
		agent.WithHistoryDepth(cfg.Agent.HistoryDepth),
		agent.WithMaxActionRounds(cfg.Agent.MaxActionRounds),
		agent.WithLLMTimeout(cfg.LLM.OpenAI.Timeout()),
		agent.WithLogger(logger.Named("agent")),
	)

	logger.L().Info("钱包助手已启动",
		slog.String("chain", gw.ChainName()),
		slog.String("wallet", wallet.Address().Hex()),
	)

	return ag.Run(ctx)
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}
