package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-support-chat/internal/config"
)

// OpenAI implements ChatModel and Classifier over the OpenAI chat
// completions API (or any compatible endpoint set through BaseURL).
type OpenAI struct {
	client          openai.Client
	model           string
	classifierModel string
	limiter         *rate.Limiter
}

// NewOpenAI builds a client from cfg. A positive cfg.RPS throttles outbound
// calls with a token bucket of cfg.Burst.
func NewOpenAI(cfg config.LLMConfig, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{option.WithMaxRetries(2)}
	if cfg.APIKey != "" {
		base = append(base, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	o := &OpenAI{
		client:          openai.NewClient(append(base, opts...)...),
		model:           cfg.Model,
		classifierModel: cfg.ClassifierModel(),
	}
	if cfg.RPS > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return o
}

func (o *OpenAI) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// Stream implements ChatModel.
func (o *OpenAI) Stream(ctx context.Context, req Request, onDelta func(string)) (Completion, error) {
	if err := o.wait(ctx); err != nil {
		return Completion{}, err
	}
	params := o.chatParams(req)

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if d := chunk.Choices[0].Delta.Content; d != "" && onDelta != nil {
				onDelta(d)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Completion{}, fmt.Errorf("openai stream: %w", err)
	}
	if len(acc.Choices) == 0 {
		return Completion{}, ErrNoChoices
	}

	msg := acc.Choices[0].Message
	out := Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Classify implements Classifier with a strict JSON-schema response whose
// single property is an enum of labels.
func (o *OpenAI) Classify(ctx context.Context, system, input string, labels []string) (string, error) {
	if err := o.wait(ctx); err != nil {
		return "", err
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{"type": "string", "enum": labels},
		},
		"required":             []string{"agent"},
		"additionalProperties": false,
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.classifierModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(input),
		},
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "agent_route",
					Strict: openai.Bool(true),
					Schema: schema,
				},
			},
		},
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai classify: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return parseLabel(resp.Choices[0].Message.Content), nil
}

func (o *OpenAI) chatParams(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = o.model
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}
	return params
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

// parseLabel extracts the label from {"agent":"ORDER"} or accepts a bare label.
func parseLabel(content string) string {
	content = strings.TrimSpace(content)
	var v struct {
		Agent string `json:"agent"`
	}
	if err := json.Unmarshal([]byte(content), &v); err == nil && v.Agent != "" {
		return v.Agent
	}
	return strings.Trim(content, "\"")
}
