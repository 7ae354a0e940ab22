// Package anthropic implements relay.ModelBackend over the official
// Anthropic SDK (Messages API, non-streaming).
package anthropic

import (
	"context"
	"encoding/json"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nevindra/relay"
)

// defaultMaxTokens caps completions when a request leaves MaxTokens
// unset; the Messages API requires an explicit cap.
const defaultMaxTokens = 1024

// Backend is an Anthropic-backed relay.ModelBackend. Failures fold into
// responses with Status "error"; no Go error leaves Generate.
type Backend struct {
	client sdk.Client
	model  string
	logger *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates a backend using the given API key and default model.
func New(apiKey, model string, opts ...Option) *Backend {
	b := &Backend{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) Name() string { return "anthropic" }

// Generate issues one Messages.New call. Text blocks concatenate into
// the output; a native tool_use block becomes the response's tool call.
func (b *Backend) Generate(ctx context.Context, req relay.ModelRequest) relay.ModelResponse {
	model := req.Options.Model
	if model == "" {
		model = b.model
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature != 0 {
		params.Temperature = sdk.Float(req.Options.Temperature)
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		b.logger.Warn("messages request failed", "model", model, "err", err)
		modelErr := &relay.ErrModel{Backend: "anthropic", Message: err.Error()}
		return relay.ModelResponse{
			Status:   relay.ModelStatusError,
			Metadata: map[string]any{"error": modelErr.Error()},
		}
	}

	out := relay.ModelResponse{
		Status: relay.ModelStatusSuccess,
		Metadata: map[string]any{
			"model":         model,
			"stop_reason":   string(msg.StopReason),
			"input_tokens":  int(msg.Usage.InputTokens),
			"output_tokens": int(msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Output += block.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				args = map[string]any{}
			}
			out.ToolCall = &relay.ToolCallPayload{Name: block.Name, Arguments: args}
		}
	}
	return out
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// compile-time check
var _ relay.ModelBackend = (*Backend)(nil)
