package action

import (
	"context"
	"fmt"
	"math"

	xerrors "OpenWallet-Chain/internal/errors"
)

// 动作层的错误码。校验失败与护栏拦截是两类不同的拒绝：前者说明
// 参数不合法，后者说明参数合法但越过了动作自身的安全边界。
const (
	CodeDuplicateAction    xerrors.Code = "DUPLICATE_ACTION"
	CodeUnknownAction      xerrors.Code = "UNKNOWN_ACTION"
	CodeValidationError    xerrors.Code = "VALIDATION_ERROR"
	CodeGuardrailViolation xerrors.Code = "GUARDRAIL_VIOLATION"
)

func init() {
	xerrors.Register(CodeDuplicateAction, xerrors.Attributes{
		Message:  "动作名称重复",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeUnknownAction, xerrors.Attributes{
		Message:  "未注册的动作",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeValidationError, xerrors.Attributes{
		Message:  "动作参数校验未通过",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeGuardrailViolation, xerrors.Attributes{
		Message:  "动作触发安全护栏",
		Severity: xerrors.SeverityWarning,
	})
}

// ParamType 列举动作参数允许的 JSON 类型。
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

func (t ParamType) valid() bool {
	switch t {
	case ParamString, ParamInteger, ParamNumber, ParamBoolean:
		return true
	default:
		return false
	}
}

// Param 描述动作的一个参数。Description 面向模型，用英文书写。
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Args 承载一次调用的已解析参数。
type Args map[string]any

// String 读取字符串参数。模式校验通过后缺失即视为可选参数，
// 返回空串与错误由调用方区分。
func (a Args) String(name string) (string, error) {
	value, ok := a[name]
	if !ok {
		return "", xerrors.Newf(CodeValidationError, "缺少参数 %s", name)
	}
	text, ok := value.(string)
	if !ok {
		return "", xerrors.Newf(CodeValidationError, "参数 %s 不是字符串", name)
	}
	return text, nil
}

// StringOr 读取可选字符串参数，缺失时返回兜底值。
func (a Args) StringOr(name, fallback string) string {
	text, err := a.String(name)
	if err != nil || text == "" {
		return fallback
	}
	return text
}

// Uint 读取非负整数参数。JSON 解码器给出的数字是 float64，
// 这里统一收敛并拒绝负数与小数。
func (a Args) Uint(name string) (uint64, error) {
	value, ok := a[name]
	if !ok {
		return 0, xerrors.Newf(CodeValidationError, "缺少参数 %s", name)
	}
	switch v := value.(type) {
	case float64:
		if v < 0 || math.Trunc(v) != v {
			return 0, xerrors.Newf(CodeValidationError, "参数 %s 必须是非负整数", name)
		}
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, xerrors.Newf(CodeValidationError, "参数 %s 必须是非负整数", name)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, xerrors.Newf(CodeValidationError, "参数 %s 必须是非负整数", name)
		}
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return 0, xerrors.Newf(CodeValidationError, "参数 %s 不是整数", name)
	}
}

// GuardrailFunc 在参数通过模式校验后执行动作级安全检查。
// 返回的错误会以 GUARDRAIL_VIOLATION 的形式回到会话，绝不逃逸。
type GuardrailFunc func(args Args) error

// HandlerFunc 执行动作本体并返回结果。
type HandlerFunc func(ctx context.Context, args Args) (*Outcome, error)

// Outcome 是动作成功时的产物。Value 是机器可读的载荷（余额、交易哈希），
// Summary 是写回会话供模型转述的文字。
type Outcome struct {
	Value   string
	Summary string
}

// Spec 描述一个可供模型选择的动作。
type Spec struct {
	Name        string
	Description string
	Params      []Param
	Guardrail   GuardrailFunc
	Handler     HandlerFunc
}

// schemaDocument 将参数列表展开为 JSON Schema 文档。未声明的参数
// 一律拒绝，模型不能夹带多余字段。
func (s *Spec) schemaDocument() map[string]any {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, param := range s.Params {
		prop := map[string]any{"type": string(param.Type)}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// ToolParameters 返回向模型公开的参数模式。
func (s *Spec) ToolParameters() map[string]any {
	return s.schemaDocument()
}

func (s *Spec) validate() error {
	if s.Name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "动作名称不能为空")
	}
	if s.Handler == nil {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "动作 %s 缺少处理函数", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Params))
	for _, param := range s.Params {
		if param.Name == "" {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "动作 %s 存在未命名参数", s.Name)
		}
		if !param.Type.valid() {
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("动作 %s 的参数 %s 类型非法: %s", s.Name, param.Name, param.Type))
		}
		if _, dup := seen[param.Name]; dup {
			return xerrors.Newf(xerrors.CodeInvalidArgument, "动作 %s 的参数 %s 重复声明", s.Name, param.Name)
		}
		seen[param.Name] = struct{}{}
	}
	return nil
}
