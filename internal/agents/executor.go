package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/tools"
)

// ErrGeneration wraps language model failures during an agent run.
var ErrGeneration = errors.New("generation failed")

// FallbackReply replaces an empty final answer so a turn never persists
// an empty reply.
const FallbackReply = "I'm sorry, I couldn't produce an answer. Please try again."

// DefaultMaxToolRounds bounds tool resolution when no limit is configured.
const DefaultMaxToolRounds = 2

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeAnswered means the model produced a reply without hitting the cap.
	OutcomeAnswered Outcome = "answered"
	// OutcomeCapReached means the reply was produced with tools withheld
	// after the round limit, i.e. answered without full tool resolution.
	OutcomeCapReached Outcome = "cap_reached"
)

// ToolInvocation is one resolved tool call.
type ToolInvocation struct {
	Name      string
	Arguments json.RawMessage
	Result    tools.Result
}

// RunInput is the conversation handed to an executor. Messages must not
// contain the agent's own system prompt; Run prepends it.
type RunInput struct {
	ConversationID string
	Messages       []llm.Message

	// OnToolCall, if set, observes every resolved tool call.
	OnToolCall func(ctx context.Context, inv ToolInvocation)
	// OnFinish, if set, runs once with the final result before Run returns.
	// Its error is returned from Run.
	OnFinish func(ctx context.Context, res RunResult) error
}

// RunResult is the outcome of one agent turn.
type RunResult struct {
	Agent     domain.AgentType
	Text      string
	Outcome   Outcome
	Rounds    int
	ToolCalls []ToolInvocation
}

// ExecutorOptions tunes the completion requests.
type ExecutorOptions struct {
	Model         string // empty uses the client's default model
	Temperature   float64
	MaxToolRounds int
}

// Executor runs one persona's bounded tool loop.
type Executor struct {
	profile  Profile
	model    llm.ChatModel
	registry *tools.Registry
	opts     ExecutorOptions

	specs   []llm.ToolSpec
	allowed map[string]struct{}
}

// NewExecutor binds a profile to the chat model and to the tools the registry
// grants to the profile's agent type.
func NewExecutor(p Profile, model llm.ChatModel, reg *tools.Registry, opts ExecutorOptions) *Executor {
	if opts.MaxToolRounds < 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	e := &Executor{
		profile:  p,
		model:    model,
		registry: reg,
		opts:     opts,
		allowed:  map[string]struct{}{},
	}
	if reg != nil {
		for _, t := range reg.ForAgent(p.Type) {
			e.specs = append(e.specs, llm.ToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
			e.allowed[t.Name] = struct{}{}
		}
	}
	return e
}

// Type returns the agent type this executor serves.
func (e *Executor) Type() domain.AgentType { return e.profile.Type }

// Run streams the reply to emit, one delta at a time. While the model asks
// for tools and fewer than MaxToolRounds rounds have run, the calls are
// executed and their results fed back. Once the cap is hit a last completion
// is requested with tools withheld.
func (e *Executor) Run(ctx context.Context, in RunInput, emit func(delta string)) (RunResult, error) {
	ctx, span := otel.Tracer("agents/Executor").Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("agent.type", string(e.profile.Type)),
			attribute.String("conversation.id", in.ConversationID),
		),
	)
	defer span.End()

	msgs := make([]llm.Message, 0, len(in.Messages)+1)
	msgs = append(msgs, llm.System(e.profile.SystemPrompt))
	msgs = append(msgs, in.Messages...)

	res := RunResult{Agent: e.profile.Type, Outcome: OutcomeAnswered}
	var text strings.Builder
	// Text from separate rounds is joined by a newline so an intermediate
	// "let me check" does not run into the answer.
	newRound := false
	onDelta := func(d string) {
		if d == "" {
			return
		}
		if newRound && text.Len() > 0 {
			d = "\n" + d
		}
		newRound = false
		text.WriteString(d)
		if emit != nil {
			emit(d)
		}
	}

	for {
		newRound = true
		withTools := len(e.specs) > 0 && res.Rounds < e.opts.MaxToolRounds
		req := llm.Request{
			Model:       e.opts.Model,
			Messages:    msgs,
			Temperature: e.opts.Temperature,
		}
		if withTools {
			req.Tools = e.specs
		}

		comp, err := e.model.Stream(ctx, req, onDelta)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream")
			return res, fmt.Errorf("%w: %w", ErrGeneration, err)
		}

		if !withTools || len(comp.ToolCalls) == 0 {
			if !withTools && res.Rounds > 0 && res.Rounds >= e.opts.MaxToolRounds {
				res.Outcome = OutcomeCapReached
			}
			break
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})
		for _, call := range comp.ToolCalls {
			inv := e.invoke(ctx, call)
			res.ToolCalls = append(res.ToolCalls, inv)
			if in.OnToolCall != nil {
				in.OnToolCall(ctx, inv)
			}
			msgs = append(msgs, llm.ToolResult(call.ID, inv.Result.JSON()))
		}
		res.Rounds++
	}

	res.Text = text.String()
	if strings.TrimSpace(res.Text) == "" {
		res.Text = FallbackReply
		if emit != nil {
			emit(FallbackReply)
		}
	}

	observeRun(e.profile.Type, res.Outcome)
	span.SetAttributes(
		attribute.String("agent.outcome", string(res.Outcome)),
		attribute.Int("agent.rounds", res.Rounds),
	)

	if in.OnFinish != nil {
		if err := in.OnFinish(ctx, res); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "finish")
			return res, err
		}
	}
	return res, nil
}

// invoke runs one tool call. Tools outside this agent's grant are reported
// as unknown; infrastructure faults are logged and surfaced to the model as
// a failed Result.
func (e *Executor) invoke(ctx context.Context, call llm.ToolCall) ToolInvocation {
	args := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	inv := ToolInvocation{Name: call.Name, Arguments: args}

	if _, ok := e.allowed[call.Name]; !ok || e.registry == nil {
		inv.Result = tools.Fail("unknown tool")
		observeTool("unknown", false)
		return inv
	}

	r, err := e.registry.Execute(ctx, call.Name, args)
	if err != nil {
		log.Error().Err(err).
			Str("agent", string(e.profile.Type)).
			Str("tool", call.Name).
			Msg("tool execution failed")
		r = tools.Fail("Something went wrong while running " + call.Name)
	}
	inv.Result = r
	observeTool(call.Name, r.Success)
	return inv
}
