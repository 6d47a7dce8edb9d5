package session

import (
	"time"

	"github.com/google/uuid"
)

// Role 限定消息的三种来源。
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleActionResult Role = "action_result"
)

// ActionCall 记录助手消息携带的一次动作调用请求。Args 保留模型给出的
// 原始 JSON 文本，解析只发生在执行侧。
type ActionCall struct {
	ID   string
	Name string
	Args string
}

// Message 是会话历史中的一条不可变记录。action_result 消息通过 CallID
// 与触发它的调用对账。
type Message struct {
	ID         string
	Role       Role
	Content    string
	Calls      []ActionCall
	CallID     string
	ActionName string
	Success    bool
	Kind       string
	CreatedAt  time.Time
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// clone 返回深拷贝，调用方拿到的消息与内部历史互不影响。
func (m Message) clone() Message {
	cloned := m
	if len(m.Calls) > 0 {
		cloned.Calls = append([]ActionCall(nil), m.Calls...)
	}
	return cloned
}
