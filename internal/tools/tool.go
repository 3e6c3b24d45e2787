// Package tools defines the data tools that agents may call: each tool is a
// JSON-schema argument description, a natural-language description for the
// model, and an executor returning a uniform Result.
//
// Expected business failures (not found, invalid state, validation) are
// Result values with Success=false. Only infrastructure faults are returned
// as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// Result is the uniform tool outcome serialized back to the model.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result { return Result{Success: true, Data: data} }

// Fail builds a business-failure Result.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

// JSON renders r for a tool message. Marshalling failures degrade to a
// failure payload so the model always receives valid JSON.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Fail("result could not be encoded"))
	}
	return string(b)
}

// ExecFunc runs a tool with raw JSON arguments.
type ExecFunc func(ctx context.Context, args json.RawMessage) (Result, error)

// Tool is one callable function exposed to a model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     ExecFunc
}

// Registry stores tools by name and the set each agent may use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	agents map[domain.AgentType][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		agents: make(map[domain.AgentType][]string),
	}
}

// Register adds tools to the registry and grants them to agent.
func (r *Registry) Register(agent domain.AgentType, ts ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range ts {
		if t.Name == "" {
			return fmt.Errorf("tool name is required")
		}
		if t.Execute == nil {
			return fmt.Errorf("executor is required for %s", t.Name)
		}
		if _, exists := r.tools[t.Name]; exists {
			return fmt.Errorf("tool already registered: %s", t.Name)
		}
		r.tools[t.Name] = t
		r.agents[agent] = append(r.agents[agent], t.Name)
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(agent domain.AgentType, ts ...Tool) {
	if err := r.Register(agent, ts...); err != nil {
		panic(err)
	}
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ForAgent returns the agent's tools in registration order.
func (r *Registry) ForAgent(agent domain.AgentType) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.agents[agent]
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n])
	}
	return out
}

// Names returns the agent's tool names sorted alphabetically.
func (r *Registry) Names(agent domain.AgentType) []string {
	r.mu.RLock()
	names := append([]string(nil), r.agents[agent]...)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Execute runs the named tool. Unknown tools produce a failure Result rather
// than an error so the model can recover.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Fail("unknown tool"), nil
	}
	return t.Execute(ctx, args)
}

// ---- schema + argument helpers ----

func object(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// decode unmarshals tool arguments. A nil Result means decoding succeeded.
func decode(args json.RawMessage, v any) *Result {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		r := Fail("Invalid arguments: " + err.Error())
		return &r
	}
	return nil
}
