// Package openaicompat implements relay.ModelBackend for any
// OpenAI-compatible chat completions API.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek,
// Mistral, Ollama, vLLM, LM Studio, and any other provider implementing
// the chat completions contract.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nevindra/relay"
)

// Backend is an OpenAI-compatible relay.ModelBackend. It never returns a
// Go error and never panics: every failure folds into a response with
// Status "error" and detail in Metadata.
type Backend struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithName overrides the backend name reported in traces and logs.
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// New creates a backend. baseURL is the API base (e.g.
// "https://api.openai.com/v1", "http://localhost:11434/v1"); the
// /chat/completions path is appended automatically.
func New(apiKey, baseURL, model string, opts ...Option) *Backend {
	b := &Backend{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
		name:    "openai",
		logger:  slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Backend) Name() string { return b.name }

// --- wire types ---

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one non-streaming chat completion request.
func (b *Backend) Generate(ctx context.Context, req relay.ModelRequest) relay.ModelResponse {
	model := req.Options.Model
	if model == "" {
		model = b.model
	}

	msgs := make([]message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, message{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, message{Role: "user", Content: req.Prompt})

	body := chatRequest{Model: model, Messages: msgs, MaxTokens: req.Options.MaxTokens}
	if req.Options.Temperature != 0 {
		t := req.Options.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errResponse(b.name, fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return errResponse(b.name, fmt.Sprintf("create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.logger.Warn("chat request failed", "backend", b.name, "err", err)
		return errResponse(b.name, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		httpErr := &relay.ErrHTTP{Status: resp.StatusCode, Body: string(detail)}
		b.logger.Warn("chat request rejected", "backend", b.name, "status", resp.StatusCode)
		return errResponse(b.name, httpErr.Error())
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return errResponse(b.name, fmt.Sprintf("decode response: %v", err))
	}
	if len(chat.Choices) == 0 {
		return errResponse(b.name, "response carried no choices")
	}

	out := relay.ModelResponse{
		Status: relay.ModelStatusSuccess,
		Output: chat.Choices[0].Message.Content,
		Metadata: map[string]any{
			"model":         model,
			"finish_reason": chat.Choices[0].FinishReason,
		},
	}
	if chat.Usage != nil {
		out.Metadata["input_tokens"] = chat.Usage.PromptTokens
		out.Metadata["output_tokens"] = chat.Usage.CompletionTokens
	}
	return out
}

func errResponse(name, msg string) relay.ModelResponse {
	err := &relay.ErrModel{Backend: name, Message: msg}
	return relay.ModelResponse{
		Status:   relay.ModelStatusError,
		Metadata: map[string]any{"error": err.Error()},
	}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// compile-time check
var _ relay.ModelBackend = (*Backend)(nil)
