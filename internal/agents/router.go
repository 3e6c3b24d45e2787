package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm"
)

// ErrClassify wraps provider failures during intent routing. A failed
// classification is never silently defaulted.
var ErrClassify = errors.New("intent classification failed")

// Router classifies a raw user message into one AgentType.
type Router struct {
	classifier llm.Classifier
	prompt     string
}

// NewRouter builds a Router. An empty prompt selects RouterPrompt.
func NewRouter(c llm.Classifier, prompt string) *Router {
	if prompt == "" {
		prompt = RouterPrompt
	}
	return &Router{classifier: c, prompt: prompt}
}

// Route asks the classifier for exactly one label. Labels outside the closed
// set fall back to SUPPORT.
func (r *Router) Route(ctx context.Context, message string) (domain.AgentType, error) {
	ctx, span := otel.Tracer("agents/Router").Start(ctx, "Route",
		trace.WithAttributes(attribute.Int("message.len", len(message))),
	)
	defer span.End()

	types := domain.AgentTypes()
	labels := make([]string, len(types))
	for i, t := range types {
		labels[i] = string(t)
	}

	label, err := r.classifier.Classify(ctx, r.prompt, message, labels)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classify")
		return "", fmt.Errorf("%w: %w", ErrClassify, err)
	}

	t, ok := domain.ParseAgentType(label)
	if !ok {
		log.Warn().Str("label", label).Msg("router returned unknown label, using SUPPORT")
		observeRoute(domain.AgentSupport, true)
		span.SetAttributes(attribute.Bool("route.fallback", true))
		return domain.AgentSupport, nil
	}
	observeRoute(t, false)
	span.SetAttributes(attribute.String("route.agent", string(t)))
	return t, nil
}
