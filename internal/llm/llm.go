package llm

import (
	"context"

	xerrors "OpenWallet-Chain/internal/errors"
)

// CodeModelError 表示一次模型调用没有得到可用的输出，
// 包括网络失败、非 2xx 状态以及无法解析的响应体。
const CodeModelError xerrors.Code = "MODEL_ERROR"

func init() {
	xerrors.Register(CodeModelError, xerrors.Attributes{
		Message:   "大模型调用失败",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// 聊天接口的标准角色取值。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 是发往模型的一条对话消息。
type Message struct {
	Role    string
	Content string

	// ToolCallID 在 Role 为 tool 时必填，指向触发该结果的调用。
	ToolCallID string

	// ToolCalls 在 Role 为 assistant 时回放模型发起过的调用，
	// 模型依赖它把后续的 tool 消息对应起来。
	ToolCalls []ToolCall
}

// ToolCall 是模型请求执行的一次工具调用。Arguments 保持模型给出的
// 原始 JSON 文本，由调用方自行解析与校验。
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSchema 向模型声明一个可调用的工具。Parameters 是 JSON Schema
// 的对象形式。
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request 携带一次推理所需的完整上下文。
type Request struct {
	Instructions string
	Messages     []Message
	Tools        []ToolSchema
}

// Response 是模型的一次推理输出：纯文本回复、一组工具调用，
// 或两者兼有，文本部分作为调用前的说明。
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
