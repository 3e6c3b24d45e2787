// Package llm is the boundary to the hosted language model. It exposes two
// capabilities: streaming chat completion with tool calls (ChatModel) and
// closed-choice classification (Classifier). The OpenAI implementation lives
// in openai.go; llmtest provides a scripted fake.
package llm

import (
	"context"
	"errors"
)

// Role is a generation role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry of the prompt.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant turns only
	ToolCallID string     // tool turns only
}

// System, User, Assistant and ToolResult build prompt messages.
func System(s string) Message    { return Message{Role: RoleSystem, Content: s} }
func User(s string) Message      { return Message{Role: RoleUser, Content: s} }
func Assistant(s string) Message { return Message{Role: RoleAssistant, Content: s} }
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ToolSpec describes a callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
}

// Completion is the assembled result of a streamed completion.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatModel streams a completion, invoking onDelta for every content
// fragment in arrival order, and returns the assembled completion.
type ChatModel interface {
	Stream(ctx context.Context, req Request, onDelta func(string)) (Completion, error)
}

// Classifier picks exactly one of labels for input using a structured,
// temperature-0 completion. The returned label is whatever the model produced;
// callers validate it.
type Classifier interface {
	Classify(ctx context.Context, system, input string, labels []string) (string, error)
}

// ErrNoChoices is returned when the provider answers without any choice.
var ErrNoChoices = errors.New("llm: response has no choices")
