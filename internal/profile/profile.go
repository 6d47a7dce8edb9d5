package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile 描述代理的对话人格：名称、系统指令以及进出场白。
type Profile struct {
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	Greeting     string `json:"greeting"`
	Farewell     string `json:"farewell"`
}

const defaultInstructions = "You are a friendly wallet assistant that manages " +
	"an on-chain account on behalf of the user. Use the provided tools to fund " +
	"the wallet, check balances, transfer tokens and create fungible assets. " +
	"Never invent transaction hashes or balances; only report what a tool " +
	"returned. After a tool result arrives, summarise the outcome for the user " +
	"in one or two sentences, in the user's language."

// Default 返回内置的钱包助手人格。
func Default() *Profile {
	return &Profile{
		Name:         "WalletChat",
		Instructions: defaultInstructions,
		Greeting:     "你好，我是链上钱包助手，可以帮你充值、查余额、转账和发行资产。输入空行或 exit 退出。",
		Farewell:     "再见！",
	}
}

// Load 从 JSON 文件加载人格配置，空路径返回内置人格。文件中留空的
// 字段回落到内置值。
func Load(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析人格文件路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取人格文件失败: %w", err)
	}
	defer file.Close()

	var loaded Profile
	if err := json.NewDecoder(file).Decode(&loaded); err != nil {
		return nil, fmt.Errorf("解析人格文件失败: %w", err)
	}

	base := Default()
	if strings.TrimSpace(loaded.Name) != "" {
		base.Name = loaded.Name
	}
	if strings.TrimSpace(loaded.Instructions) != "" {
		base.Instructions = loaded.Instructions
	}
	if strings.TrimSpace(loaded.Greeting) != "" {
		base.Greeting = loaded.Greeting
	}
	if strings.TrimSpace(loaded.Farewell) != "" {
		base.Farewell = loaded.Farewell
	}
	return base, nil
}

// SystemPrompt 把人格指令与运行期上下文（钱包地址、链名、单位约定）
// 组装成发给模型的系统提示。
func (p *Profile) SystemPrompt(address, chain string) string {
	var builder strings.Builder
	builder.WriteString(strings.TrimSpace(p.Instructions))
	builder.WriteString("\n\n")
	fmt.Fprintf(&builder, "Your name is %s. ", p.Name)
	fmt.Fprintf(&builder, "The wallet you manage has address %s on the %s network. ", address, chain)
	builder.WriteString("Balances are tracked in the smallest on-chain unit; " +
		"100000000 subunits equal one whole token. Talk to the user in whole " +
		"tokens, and use the unit each tool declares when calling it.")
	return builder.String()
}
