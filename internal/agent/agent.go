package agent

import (
	"bufio"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"OpenWallet-Chain/internal/action"
	"OpenWallet-Chain/internal/dispatch"
	xerrors "OpenWallet-Chain/internal/errors"
	"OpenWallet-Chain/internal/llm"
	"OpenWallet-Chain/internal/profile"
	"OpenWallet-Chain/internal/session"
	"OpenWallet-Chain/pkg/logger"
)

const (
	defaultHistoryDepth    = 20
	defaultMaxActionRounds = 4
)

// Agent 驱动一场人机对话：读取用户输入，请求模型，执行模型选择的
// 动作，并把动作结果交还给模型转述。
type Agent struct {
	llmClient  llm.Client
	registry   *action.Registry
	dispatcher *dispatch.Dispatcher
	session    *session.Session
	persona    *profile.Profile

	instructions string
	historyDepth int
	maxRounds    int
	llmTimeout   time.Duration

	input  io.Reader
	output io.Writer
	logger *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithPersona 设置对话人格。
func WithPersona(p *profile.Profile) Option {
	return func(a *Agent) {
		if p != nil {
			a.persona = p
		}
	}
}

// WithInstructions 设置发给模型的系统提示。
func WithInstructions(instructions string) Option {
	return func(a *Agent) {
		a.instructions = instructions
	}
}

// WithHistoryDepth 设置每次推理回放的历史消息条数。
func WithHistoryDepth(depth int) Option {
	return func(a *Agent) {
		if depth > 0 {
			a.historyDepth = depth
		}
	}
}

// WithMaxActionRounds 设置单个回合内允许的动作轮次上限。
func WithMaxActionRounds(rounds int) Option {
	return func(a *Agent) {
		if rounds > 0 {
			a.maxRounds = rounds
		}
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// WithIO 指定控制台读写端，默认为标准输入输出。
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *Agent) {
		if in != nil {
			a.input = in
		}
		if out != nil {
			a.output = out
		}
	}
}

// WithLogger 指定调试日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = log
	}
}

// New 创建一个 Agent。
func New(llmClient llm.Client, registry *action.Registry, dispatcher *dispatch.Dispatcher, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:    llmClient,
		registry:     registry,
		dispatcher:   dispatcher,
		session:      session.New(),
		persona:      profile.Default(),
		historyDepth: defaultHistoryDepth,
		maxRounds:    defaultMaxActionRounds,
		input:        os.Stdin,
		output:       os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Session 返回本次对话的会话对象。
func (a *Agent) Session() *session.Session {
	return a.session
}

// Run 执行控制台循环：逐行读取输入，空行、exit、quit 或输入流结束
// 都会结束循环。网关资源的释放由调用方的 defer 保证，与退出路径
// 无关。
func (a *Agent) Run(ctx context.Context) error {
	a.printf("%s\n", a.persona.Greeting)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		a.printf("> ")
		select {
		case <-ctx.Done():
			a.printf("\n%s\n", a.persona.Farewell)
			return nil
		case line, ok := <-lines:
			if !ok {
				a.printf("\n%s\n", a.persona.Farewell)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.EqualFold(trimmed, "exit") || strings.EqualFold(trimmed, "quit") {
				a.printf("%s\n", a.persona.Farewell)
				return nil
			}

			reply, err := a.Converse(ctx, trimmed)
			if err != nil {
				if stdErrors.Is(err, context.Canceled) || ctx.Err() != nil {
					a.printf("\n%s\n", a.persona.Farewell)
					return nil
				}
				a.printf("会话异常终止: %v\n", err)
				return err
			}
			a.printf("%s\n", reply)
		}
	}
}

// Converse 执行一个完整回合并返回最终的助手回复。模型服务的临时
// 故障用道歉文本收束本回合，不终止会话；会话层自身的状态冲突才视
// 为不可恢复。
func (a *Agent) Converse(ctx context.Context, input string) (string, error) {
	if a.llmClient == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if a.registry == nil || a.dispatcher == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置动作注册表或调度器")
	}

	if _, err := a.session.Begin(input); err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		resp, err := a.complete(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.L().Warn("模型调用失败，放弃本回合",
				slog.String("session_id", a.session.ID()),
				slog.Int("turn", a.session.Turn()),
				slog.String("error", err.Error()),
			)
			return a.concede("抱歉，模型服务暂时不可用，请稍后再试。")
		}

		if len(resp.ToolCalls) == 0 {
			if _, err := a.session.RecordAssistantText(resp.Text); err != nil {
				return a.abort(err)
			}
			return resp.Text, nil
		}

		if round >= a.maxRounds {
			logger.L().Warn("动作轮次超限，提前收束回合",
				slog.String("session_id", a.session.ID()),
				slog.Int("rounds", round),
			)
			return a.concede("这个请求触发了过多的连续链上操作，我先停下来。请把任务拆小一点再试。")
		}

		calls := make([]session.ActionCall, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			calls = append(calls, session.ActionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Arguments,
			})
		}
		recorded, err := a.session.RecordActionCalls(resp.Text, calls)
		if err != nil {
			return a.abort(err)
		}

		for i, call := range resp.ToolCalls {
			// 会话层可能为缺失的调用补了标识，以会话记录为准。
			call.ID = recorded.Calls[i].ID
			result := a.invoke(ctx, call)
			if _, err := a.session.RecordActionResult(result); err != nil {
				return a.abort(err)
			}
			a.logDebug("动作结果已写回",
				slog.String("action", call.Name),
				slog.Bool("success", result.Success),
				slog.String("kind", string(result.Kind)),
			)
		}
	}
}

// invoke 执行一次动作调用。无论参数解析、校验还是执行哪一步失败，
// 每次调用都恰好产生一个结果。
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall) *action.Result {
	start := time.Now()

	args, parseErr := parseArgs(call.Arguments)
	inv := action.NewInvocation(call.ID, call.Name, args, call.Arguments)
	if parseErr != nil {
		return action.Failed(inv, xerrors.Wrap(llm.CodeModelError, parseErr,
			"模型给出的动作参数不是合法 JSON"), time.Since(start))
	}

	if err := a.registry.Validate(inv); err != nil {
		return action.Failed(inv, err, time.Since(start))
	}
	spec, err := a.registry.Resolve(call.Name)
	if err != nil {
		return action.Failed(inv, err, time.Since(start))
	}

	out, err := a.dispatcher.Do(ctx, call.Name, func(taskCtx context.Context) (*action.Outcome, error) {
		return spec.Handler(taskCtx, inv.Args)
	})
	if err != nil {
		return action.Failed(inv, err, time.Since(start))
	}
	return action.Succeeded(inv, out, time.Since(start))
}

// complete 组装上下文并调用模型。
func (a *Agent) complete(ctx context.Context) (*llm.Response, error) {
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	resp, err := a.llmClient.Complete(llmCtx, llm.Request{
		Instructions: a.instructions,
		Messages:     a.buildMessages(),
		Tools:        a.buildTools(),
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "模型推理超时")
		}
		return nil, err
	}
	return resp, nil
}

// buildMessages 把会话历史映射成模型消息。窗口截断可能让最前面的
// 动作结果失去对应的调用消息，这类孤儿消息一并丢弃。
func (a *Agent) buildMessages() []llm.Message {
	recent := a.session.Recent(a.historyDepth)
	for len(recent) > 0 && recent[0].Role == session.RoleActionResult {
		recent = recent[1:]
	}

	messages := make([]llm.Message, 0, len(recent))
	for _, msg := range recent {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: msg.Content})
		case session.RoleAssistant:
			wire := llm.Message{Role: llm.RoleAssistant, Content: msg.Content}
			for _, call := range msg.Calls {
				wire.ToolCalls = append(wire.ToolCalls, llm.ToolCall{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: call.Args,
				})
			}
			messages = append(messages, wire)
		case session.RoleActionResult:
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: msg.CallID,
				Content:    msg.Content,
			})
		}
	}
	return messages
}

// buildTools 把注册表里的动作转换成模型可见的工具声明。
func (a *Agent) buildTools() []llm.ToolSchema {
	specs := a.registry.Specs()
	tools := make([]llm.ToolSchema, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, llm.ToolSchema{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.ToolParameters(),
		})
	}
	return tools
}

// concede 用一段兜底文本合法地结束当前回合。
func (a *Agent) concede(notice string) (string, error) {
	if _, err := a.session.RecordAssistantText(notice); err != nil {
		return a.abort(err)
	}
	return notice, nil
}

// abort 将会话标记为错误态并向上传播原因。
func (a *Agent) abort(err error) (string, error) {
	a.session.Fail(err)
	return "", err
}

func (a *Agent) printf(format string, args ...any) {
	fmt.Fprintf(a.output, format, args...)
}

func (a *Agent) logDebug(msg string, attrs ...slog.Attr) {
	if a.logger == nil {
		return
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	a.logger.Debug(msg, args...)
}

func parseArgs(raw string) (action.Args, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return action.Args{}, nil
	}
	var args action.Args
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return action.Args{}, err
	}
	if args == nil {
		args = action.Args{}
	}
	return args, nil
}
