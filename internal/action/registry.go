package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type entry struct {
	spec   Spec
	schema *jsonschema.Schema
}

// Registry 持有会话可用的全部动作。注册发生在会话循环启动之前，
// 之后集合只读，没有任何动态发现机制。
type Registry struct {
	mu    sync.RWMutex
	order []string
	specs map[string]*entry
}

// NewRegistry 创建空的动作注册表。
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*entry)}
}

// Register 校验动作定义、编译参数模式并登记动作。重名注册被拒绝。
func (r *Registry) Register(spec Spec) error {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := spec.validate(); err != nil {
		return err
	}
	schema, err := compileSchema(&spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return xerrors.Newf(CodeDuplicateAction, "动作 %s 已注册", spec.Name)
	}
	r.specs[spec.Name] = &entry{spec: spec, schema: schema}
	r.order = append(r.order, spec.Name)
	return nil
}

func compileSchema(spec *Spec) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(spec.schemaDocument())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("序列化动作 %s 的参数模式失败", spec.Name))
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("walletchat://actions/%s.json", spec.Name)
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("登记动作 %s 的参数模式失败", spec.Name))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err,
			fmt.Sprintf("编译动作 %s 的参数模式失败", spec.Name))
	}
	return schema, nil
}

// Resolve 返回指定名称的动作定义。
func (r *Registry) Resolve(name string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.specs[name]
	if !ok {
		return nil, xerrors.Newf(CodeUnknownAction, "动作 %s 未注册", name)
	}
	return &entry.spec, nil
}

// Validate 在执行前校验一次调用：先做参数模式校验，再跑动作护栏。
// 两类拒绝使用不同的错误码，便于会话区分提示。
func (r *Registry) Validate(inv *Invocation) error {
	if inv == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "调用记录为空")
	}
	r.mu.RLock()
	entry, ok := r.specs[inv.Name]
	r.mu.RUnlock()
	if !ok {
		return xerrors.Newf(CodeUnknownAction, "动作 %s 未注册", inv.Name)
	}

	args := map[string]any(inv.Args)
	if args == nil {
		args = map[string]any{}
	}
	if err := entry.schema.Validate(args); err != nil {
		return xerrors.Wrap(CodeValidationError, err,
			fmt.Sprintf("动作 %s 参数校验未通过", inv.Name))
	}

	if entry.spec.Guardrail != nil {
		if err := entry.spec.Guardrail(inv.Args); err != nil {
			if xerrors.CodeOf(err) == CodeGuardrailViolation {
				return err
			}
			return xerrors.Wrap(CodeGuardrailViolation, err,
				fmt.Sprintf("动作 %s 触发护栏", inv.Name))
		}
	}
	return nil
}

// Specs 按注册顺序返回全部动作定义。
func (r *Registry) Specs() []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, &r.specs[name].spec)
	}
	return specs
}
