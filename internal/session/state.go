package session

// State 描述会话回合所处的阶段。Errored 是吸收态，进入后任何
// 写操作都会被拒绝。
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateAwaitingAction State = "awaiting_action_result"
	StateErrored        State = "errored"
)

// String 实现 fmt.Stringer。
func (s State) String() string {
	return string(s)
}

// IsTerminal 报告状态是否不可再推进。
func (s State) IsTerminal() bool {
	return s == StateErrored
}

// Valid 报告状态是否是已知取值。
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAwaitingModel, StateAwaitingAction, StateErrored:
		return true
	default:
		return false
	}
}

// transitions 描述除 Fail 之外允许的状态流转。动作结果写入后回到
// awaiting_model：结果总是交还模型转述，所以不存在直接回到 idle 的边。
var transitions = map[State][]State{
	StateIdle:           {StateAwaitingModel},
	StateAwaitingModel:  {StateIdle, StateAwaitingAction},
	StateAwaitingAction: {StateAwaitingModel, StateAwaitingAction},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
