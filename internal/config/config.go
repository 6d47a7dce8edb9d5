package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述钱包助手在启动阶段需要加载的全部配置。密钥一律不落盘，
// 配置中只记录承载密钥的环境变量名。
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Wallet  WalletConfig  `json:"wallet"`
	Ledger  LedgerConfig  `json:"ledger"`
	Agent   AgentConfig   `json:"agent"`
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的调用参数。
type OpenAIConfig struct {
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 把秒数配置转换成 time.Duration，未配置时返回零值。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WalletConfig 描述运行时钱包的密钥来源。AllowEphemeral 为 true 时，
// 环境变量缺失会生成一次性的开发网账户而不是启动失败。
type WalletConfig struct {
	PrivateKeyEnv  string `json:"private_key_env"`
	AllowEphemeral bool   `json:"allow_ephemeral"`
}

// LedgerConfig 指向链目录文件并选择默认链。
type LedgerConfig struct {
	ChainConfig          string `json:"chain_config"`
	DefaultChain         string `json:"default_chain"`
	FaucetTimeoutSeconds int    `json:"faucet_timeout_seconds"`
}

// AgentConfig 控制会话循环的行为参数。
type AgentConfig struct {
	Profile         string `json:"profile"`
	HistoryDepth    int    `json:"history_depth"`
	MaxActionRounds int    `json:"max_action_rounds"`
}

// LoggingConfig 描述日志与审计输出。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制链上操作审计流的落盘行为。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值，
// 相对路径统一解析到配置文件所在目录。
func (c *Config) applyDefaults(baseDir string) {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Wallet.PrivateKeyEnv == "" {
		c.Wallet.PrivateKeyEnv = "WALLET_PRIVATE_KEY"
	}

	if c.Ledger.ChainConfig == "" {
		c.Ledger.ChainConfig = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Ledger.ChainConfig) {
		c.Ledger.ChainConfig = filepath.Join(baseDir, c.Ledger.ChainConfig)
	}

	if c.Agent.Profile != "" && !filepath.IsAbs(c.Agent.Profile) {
		c.Agent.Profile = filepath.Join(baseDir, c.Agent.Profile)
	}
	if c.Agent.HistoryDepth <= 0 {
		c.Agent.HistoryDepth = 20
	}
	if c.Agent.MaxActionRounds <= 0 {
		c.Agent.MaxActionRounds = 4
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}
