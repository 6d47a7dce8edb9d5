package session

import (
	"fmt"
	"sync"

	"OpenWallet-Chain/internal/action"
	xerrors "OpenWallet-Chain/internal/errors"

	"github.com/google/uuid"
)

// CodeStateConflict 表示会话收到了与当前状态不符的写操作。
// 这是编程错误的信号，而不是会话数据问题。
const CodeStateConflict xerrors.Code = "SESSION_STATE_CONFLICT"

func init() {
	xerrors.Register(CodeStateConflict, xerrors.Attributes{
		Message:  "会话状态不允许该操作",
		Severity: xerrors.SeverityCritical,
	})
}

// Session 维护一场对话的状态机与只追加的消息历史。历史没有任何
// 修改或删除入口，读取方拿到的永远是拷贝。
type Session struct {
	mu      sync.RWMutex
	id      string
	state   State
	turn    int
	history []Message
	failure error

	// pending 记录最近一条助手消息中尚未写回结果的调用。
	pending map[string]struct{}
}

// New 创建处于 Idle 状态的新会话。
func New() *Session {
	return &Session{
		id:      uuid.NewString(),
		state:   StateIdle,
		pending: make(map[string]struct{}),
	}
}

// ID 返回会话标识。
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State 返回当前状态。
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Turn 返回已开始的用户回合数。
func (s *Session) Turn() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// Err 返回导致会话进入 Errored 的原因。
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Len 返回历史消息条数。
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Messages 返回完整历史的拷贝。
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.history))
	for _, msg := range s.history {
		out = append(out, msg.clone())
	}
	return out
}

// Recent 返回最近 n 条历史的拷贝，n 不为正时返回全部。
func (s *Session) Recent(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.history) > n {
		start = len(s.history) - n
	}
	out := make([]Message, 0, len(s.history)-start)
	for _, msg := range s.history[start:] {
		out = append(out, msg.clone())
	}
	return out
}

func (s *Session) guard(to State) error {
	if s.state == StateErrored {
		return xerrors.New(CodeStateConflict,
			fmt.Sprintf("会话已进入错误态: %v", s.failure))
	}
	if !canTransition(s.state, to) {
		return xerrors.Newf(CodeStateConflict, "不允许从 %s 进入 %s", s.state, to)
	}
	return nil
}

func (s *Session) append(msg Message) *Message {
	s.history = append(s.history, msg)
	cloned := msg.clone()
	return &cloned
}

// Begin 开启一个新的用户回合：追加 user 消息并等待模型响应。
func (s *Session) Begin(input string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(StateAwaitingModel); err != nil {
		return nil, err
	}
	if s.state != StateIdle {
		return nil, xerrors.Newf(CodeStateConflict, "上一回合尚未结束，当前状态 %s", s.state)
	}
	s.turn++
	s.state = StateAwaitingModel
	return s.append(newMessage(RoleUser, input)), nil
}

// RecordAssistantText 写入模型的纯文本回复并结束本回合。
func (s *Session) RecordAssistantText(text string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(StateIdle); err != nil {
		return nil, err
	}
	if s.state != StateAwaitingModel {
		return nil, xerrors.Newf(CodeStateConflict, "当前状态 %s 不接受模型文本", s.state)
	}
	s.state = StateIdle
	return s.append(newMessage(RoleAssistant, text)), nil
}

// RecordActionCalls 写入携带动作调用的助手消息。会话保持在等待结果
// 状态，直到每个调用都写回了结果。
func (s *Session) RecordActionCalls(text string, calls []ActionCall) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(StateAwaitingAction); err != nil {
		return nil, err
	}
	if s.state != StateAwaitingModel {
		return nil, xerrors.Newf(CodeStateConflict, "当前状态 %s 不接受动作调用", s.state)
	}
	if len(calls) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "动作调用列表为空")
	}

	pending := make(map[string]struct{}, len(calls))
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
		if _, dup := pending[calls[i].ID]; dup {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "调用标识 %s 重复", calls[i].ID)
		}
		pending[calls[i].ID] = struct{}{}
	}

	msg := newMessage(RoleAssistant, text)
	msg.Calls = append([]ActionCall(nil), calls...)
	s.pending = pending
	s.state = StateAwaitingAction
	return s.append(msg), nil
}

// RecordActionResult 写回一次调用的结果。最后一个结果写入后回到
// 等待模型状态，由模型对结果进行转述。
func (s *Session) RecordActionResult(res *action.Result) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(StateAwaitingModel); err != nil {
		return nil, err
	}
	if s.state != StateAwaitingAction {
		return nil, xerrors.Newf(CodeStateConflict, "当前状态 %s 不接受动作结果", s.state)
	}
	if res == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "动作结果为空")
	}
	if _, ok := s.pending[res.InvocationID]; !ok {
		return nil, xerrors.Newf(CodeStateConflict, "调用 %s 不在待处理列表中", res.InvocationID)
	}
	delete(s.pending, res.InvocationID)

	msg := newMessage(RoleActionResult, res.Render())
	msg.CallID = res.InvocationID
	msg.ActionName = res.Name
	msg.Success = res.Success
	msg.Kind = string(res.Kind)

	if len(s.pending) == 0 {
		s.state = StateAwaitingModel
	}
	return s.append(msg), nil
}

// Fail 将会话标记为错误态。错误态是吸收态，之后的任何写操作都会失败。
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateErrored {
		return
	}
	s.state = StateErrored
	s.failure = err
}
