package action

import (
	"fmt"
	"time"

	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/google/uuid"
)

// Invocation 表示模型选择的一次动作调用。ID 沿用模型给出的调用标识，
// 缺失时生成一个，保证结果与调用始终可以对账。
type Invocation struct {
	ID   string
	Name string
	Args Args
	Raw  string
}

// NewInvocation 组装调用记录。
func NewInvocation(id, name string, args Args, raw string) *Invocation {
	if id == "" {
		id = uuid.NewString()
	}
	if args == nil {
		args = Args{}
	}
	return &Invocation{ID: id, Name: name, Args: args, Raw: raw}
}

// Result 是一次调用的唯一产物。无论成功、校验失败还是护栏拦截，
// 每个 Invocation 都恰好对应一个 Result。
type Result struct {
	InvocationID string
	Name         string
	Success      bool
	Kind         xerrors.Code
	Value        string
	Summary      string
	Elapsed      time.Duration
}

// Succeeded 由动作产物构造成功结果。
func Succeeded(inv *Invocation, out *Outcome, elapsed time.Duration) *Result {
	res := &Result{
		InvocationID: inv.ID,
		Name:         inv.Name,
		Success:      true,
		Elapsed:      elapsed,
	}
	if out != nil {
		res.Value = out.Value
		res.Summary = out.Summary
	}
	return res
}

// Failed 将任意错误折叠成失败结果，错误码缺失时落到 UNKNOWN。
func Failed(inv *Invocation, err error, elapsed time.Duration) *Result {
	return &Result{
		InvocationID: inv.ID,
		Name:         inv.Name,
		Success:      false,
		Kind:         xerrors.CodeOf(err),
		Summary:      xerrors.MessageOf(err),
		Elapsed:      elapsed,
	}
}

// Render 生成写回会话、供模型转述的文字。
func (r *Result) Render() string {
	if r == nil {
		return ""
	}
	if r.Success {
		if r.Summary != "" {
			return r.Summary
		}
		if r.Value != "" {
			return r.Value
		}
		return "执行成功"
	}
	return fmt.Sprintf("执行失败 [%s]: %s", r.Kind, r.Summary)
}
