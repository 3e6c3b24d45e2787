// Package services – ChatService
//
// ChatService orchestrates one chat turn: it validates the request, resolves
// or creates the conversation (committing the USER message before any
// generation), classifies the message, dispatches it to the matching agent,
// relays the reply as stream events, and persists the AGENT reply with its
// audit trail.
//
// The turn is split in two so the HTTP layer can send the resolved
// conversation id before the body starts: Prepare (validate + resolve) and
// Run (route + generate + persist). Handle runs both.
//
// Observability: Prepare and Run are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/agents"
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/stream"
)

// defaultUserName names a conversation recreated from a stale id when the
// request carried no name.
const defaultUserName = "User"

// IntentRouter picks the agent for a raw user message.
type IntentRouter interface {
	Route(ctx context.Context, message string) (domain.AgentType, error)
}

// AgentRunner executes one agent turn.
type AgentRunner interface {
	Run(ctx context.Context, in agents.RunInput, emit func(delta string)) (agents.RunResult, error)
}

// HandleInput is one inbound chat message.
type HandleInput struct {
	Message        string
	Name           string
	ConversationID string
	IdempotencyKey string
}

// Turn is a validated request whose USER message is already committed (or,
// for a replay, whose stored reply was found).
type Turn struct {
	ConversationID string
	Name           string
	Message        string
	IdempotencyKey string

	replay *domain.Message
}

// Replayed reports whether the turn will be answered from an idempotency record.
func (t *Turn) Replayed() bool { return t.replay != nil }

// HandleResult describes a completed turn.
type HandleResult struct {
	ConversationID string
	Agent          domain.AgentType
	MessageID      string
	Reply          string
	Outcome        agents.Outcome
	Replayed       bool
}

// ChatService coordinates routing, agent execution, and persistence.
type ChatService struct {
	DB     *gorm.DB
	Router IntentRouter

	Support AgentRunner
	Order   AgentRunner
	Billing AgentRunner

	// GenerationTimeout bounds routing and generation. Zero disables it.
	GenerationTimeout time.Duration
	// IdempotencyTTL is how long a reply stays replayable by key.
	IdempotencyTTL time.Duration

	Now func() time.Time
}

// NewChatService wires a ChatService with default timings.
func NewChatService(db *gorm.DB, router IntentRouter, support, order, billing AgentRunner) *ChatService {
	return &ChatService{
		DB:                db,
		Router:            router,
		Support:           support,
		Order:             order,
		Billing:           billing,
		GenerationTimeout: 90 * time.Second,
		IdempotencyTTL:    24 * time.Hour,
		Now:               func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs Prepare and Run.
func (s *ChatService) Handle(ctx context.Context, in HandleInput, emit func(stream.Event)) (*HandleResult, error) {
	t, err := s.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, t, emit)
}

// Prepare validates the request and resolves the conversation. A known id
// gets the USER message appended; an unknown id is logged and replaced by a
// new conversation; no id creates conversation and message atomically.
//
// When the idempotency key matches an unexpired record, nothing is written and
// the returned turn replays the stored reply.
func (s *ChatService) Prepare(ctx context.Context, in HandleInput) (*Turn, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Prepare",
		trace.WithAttributes(attribute.String("conversation.id", in.ConversationID)),
	)
	defer span.End()

	msg := strings.TrimSpace(in.Message)
	name := strings.TrimSpace(in.Name)
	id := strings.TrimSpace(in.ConversationID)
	key := strings.TrimSpace(in.IdempotencyKey)

	if msg == "" {
		return nil, invalid("Message is required")
	}
	if id == "" && name == "" {
		return nil, invalid("Name is required")
	}

	if key != "" {
		t, err := s.replay(ctx, key, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			span.SetAttributes(attribute.Bool("idempotent.replay", true))
			return t, nil
		}
	}

	t := &Turn{Name: name, Message: msg, IdempotencyKey: key}
	if id != "" {
		if validID(id) {
			_, err := repo.AppendMessage(ctx, s.DB, id, domain.RoleUser, msg, nil)
			if err == nil {
				t.ConversationID = id
				return t, nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return nil, err
			}
		}
		log.Warn().Str("conversation_id", id).Msg("stale conversation id, starting new conversation")
		if t.Name == "" {
			t.Name = defaultUserName
		}
	}

	c, err := repo.CreateConversation(ctx, s.DB, t.Name, msg)
	if err != nil {
		return nil, err
	}
	t.ConversationID = c.ID
	span.SetAttributes(attribute.String("conversation.id", c.ID))
	return t, nil
}

// Replayable reports whether Prepare would answer key for conversation id
// from storage instead of running an agent.
func (s *ChatService) Replayable(ctx context.Context, key, id string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	t, err := s.replay(ctx, key, strings.TrimSpace(id))
	return t != nil, err
}

// replay returns a replay turn for key, or nil when there is nothing to replay.
func (s *ChatService) replay(ctx context.Context, key, id string) (*Turn, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if id != "" && rec.ConversationID != id {
		return nil, nil
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Turn{ConversationID: rec.ConversationID, IdempotencyKey: key, replay: m}, nil
}

// Run classifies the message, runs the selected agent, and streams its reply
// to emit as Thinking, ContentDelta... and Done. Errors are returned to the
// caller, which decides how to surface them.
func (s *ChatService) Run(ctx context.Context, t *Turn, emit func(stream.Event)) (*HandleResult, error) {
	if emit == nil {
		emit = func(stream.Event) {}
	}
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Run",
		trace.WithAttributes(attribute.String("conversation.id", t.ConversationID)),
	)
	defer span.End()

	if t.replay != nil {
		emit(stream.ContentDelta{Text: t.replay.Content})
		emit(stream.Done{ConversationID: t.ConversationID})
		res := &HandleResult{
			ConversationID: t.ConversationID,
			MessageID:      t.replay.ID,
			Reply:          t.replay.Content,
			Replayed:       true,
		}
		if t.replay.AgentType != nil {
			res.Agent = *t.replay.AgentType
		}
		return res, nil
	}

	if s.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.GenerationTimeout)
		defer cancel()
	}

	fail := func(err error) (*HandleResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	history, err := s.history(ctx, t)
	if err != nil {
		return fail(err)
	}

	emit(stream.Thinking{})

	agent, err := s.Router.Route(ctx, t.Message)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("agent.type", string(agent)))

	runner, err := s.runner(agent)
	if err != nil {
		return fail(err)
	}

	out := &HandleResult{ConversationID: t.ConversationID, Agent: agent}
	res, err := runner.Run(ctx, agents.RunInput{
		ConversationID: t.ConversationID,
		Messages:       history,
		OnToolCall: func(ctx context.Context, inv agents.ToolInvocation) {
			s.recordToolCall(ctx, t.ConversationID, agent, inv)
		},
		OnFinish: func(ctx context.Context, res agents.RunResult) error {
			id, err := s.persistReply(ctx, t, res)
			out.MessageID = id
			return err
		},
	}, func(d string) { emit(stream.ContentDelta{Text: d}) })
	if err != nil {
		return fail(err)
	}

	out.Reply = res.Text
	out.Outcome = res.Outcome
	emit(stream.Done{ConversationID: t.ConversationID})
	return out, nil
}

// runner dispatches over every agent type.
func (s *ChatService) runner(agent domain.AgentType) (AgentRunner, error) {
	var r AgentRunner
	switch agent {
	case domain.AgentSupport:
		r = s.Support
	case domain.AgentOrder:
		r = s.Order
	case domain.AgentBilling:
		r = s.Billing
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agent)
	}
	return r, nil
}

// history loads the transcript (including the just-committed USER message)
// and prefixes the synthetic name message, which is never persisted.
func (s *ChatService) history(ctx context.Context, t *Turn) ([]llm.Message, error) {
	c, err := repo.GetConversation(ctx, s.DB, t.ConversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	name := t.Name
	if name == "" {
		name = c.Name
	}
	msgs := make([]llm.Message, 0, len(c.Messages)+1)
	msgs = append(msgs, llm.System(fmt.Sprintf("The user's name is %s.", name)))
	for _, m := range c.Messages {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, llm.User(m.Content))
		case domain.RoleAgent:
			msgs = append(msgs, llm.Assistant(m.Content))
		}
	}
	return msgs, nil
}

// persistReply stores the AGENT message, the turn's AgentAction and, when a
// key was supplied, the idempotency record in one transaction. It runs
// detached from cancellation so a reply that finished streaming is kept.
func (s *ChatService) persistReply(ctx context.Context, t *Turn, res agents.RunResult) (string, error) {
	ctx = context.WithoutCancel(ctx)
	agent := res.Agent
	var msgID string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.AppendMessage(ctx, tx, t.ConversationID, domain.RoleAgent, res.Text, &agent)
		if err != nil {
			return err
		}
		msgID = m.ID
		meta := map[string]any{
			"outcome":   string(res.Outcome),
			"rounds":    res.Rounds,
			"toolCalls": len(res.ToolCalls),
			"messageId": m.ID,
		}
		if _, err := repo.RecordAgentAction(ctx, tx, t.ConversationID, agent, "reply", meta); err != nil {
			return err
		}
		if t.IdempotencyKey == "" {
			return nil
		}
		_, err = repo.CreateIdempotency(ctx, tx, t.IdempotencyKey, t.ConversationID, m.ID, s.IdempotencyTTL)
		if errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Str("conversation_id", t.ConversationID).Msg("idempotency key already recorded")
			return nil
		}
		return err
	})
	return msgID, err
}

func (s *ChatService) recordToolCall(ctx context.Context, convID string, agent domain.AgentType, inv agents.ToolInvocation) {
	meta := map[string]any{
		"arguments": string(inv.Arguments),
		"success":   inv.Result.Success,
	}
	if inv.Result.Error != "" {
		meta["error"] = inv.Result.Error
	}
	if _, err := repo.RecordAgentAction(context.WithoutCancel(ctx), s.DB, convID, agent, "tool:"+inv.Name, meta); err != nil {
		log.Error().Err(err).Str("conversation_id", convID).Str("tool", inv.Name).Msg("record tool call")
	}
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
