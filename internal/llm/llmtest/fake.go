// Package llmtest provides scripted fakes for llm.ChatModel and
// llm.Classifier.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tbourn/go-support-chat/internal/llm"
)

// ErrScriptExhausted is returned when a fake is called more times than it
// was scripted for.
var ErrScriptExhausted = errors.New("llmtest: no scripted turn left")

// Turn is one scripted completion. Deltas are emitted in order and joined to
// form the completion content. A non-nil Err is returned after the deltas.
type Turn struct {
	Deltas    []string
	ToolCalls []llm.ToolCall
	Err       error
}

// Text is a turn that streams chunks as successive deltas.
func Text(chunks ...string) Turn { return Turn{Deltas: chunks} }

// Calls is a turn that only requests tools.
func Calls(calls ...llm.ToolCall) Turn { return Turn{ToolCalls: calls} }

// ChatModel replays Turns and records every request it receives.
type ChatModel struct {
	mu       sync.Mutex
	turns    []Turn
	Requests []llm.Request
	// Block, if set, is waited on before each turn so tests can hold a
	// generation open.
	Block chan struct{}
}

// NewChatModel scripts a fake with turns.
func NewChatModel(turns ...Turn) *ChatModel {
	return &ChatModel{turns: turns}
}

// Stream implements llm.ChatModel.
func (m *ChatModel) Stream(ctx context.Context, req llm.Request, onDelta func(string)) (llm.Completion, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	if len(m.turns) == 0 {
		m.mu.Unlock()
		return llm.Completion{}, ErrScriptExhausted
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return llm.Completion{}, ctx.Err()
		}
	}

	var content string
	for _, d := range t.Deltas {
		if err := ctx.Err(); err != nil {
			return llm.Completion{}, err
		}
		content += d
		if onDelta != nil {
			onDelta(d)
		}
	}
	if t.Err != nil {
		return llm.Completion{}, t.Err
	}
	return llm.Completion{Content: content, ToolCalls: t.ToolCalls}, nil
}

// CallCount returns the number of Stream invocations so far.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Classifier returns a fixed label or error.
type Classifier struct {
	mu     sync.Mutex
	Label  string
	Err    error
	Inputs []string
	Labels []string
}

// Classify implements llm.Classifier.
func (c *Classifier) Classify(_ context.Context, _ string, input string, labels []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Inputs = append(c.Inputs, input)
	c.Labels = labels
	if c.Err != nil {
		return "", c.Err
	}
	return c.Label, nil
}
