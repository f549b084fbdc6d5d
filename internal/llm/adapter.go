package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"ai-receptionist/internal/config"
	"ai-receptionist/pkg/logger"

	"github.com/go-resty/resty/v2"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"

	DefaultOpenAIModel   = "gpt-4"
	DefaultClaudeModel   = "claude-3-5-sonnet-20241022"
	DefaultSystemMessage = "You are a helpful assistant."

	maxErrorBody = 64 * 1024
)

// Adapter puts the OpenAI and Anthropic chat APIs behind one contract.
// A provider whose key is empty is unconfigured: calls to it fail with
// ErrProviderNotConfigured before any network I/O.
type Adapter struct {
	openai    *resty.Client
	anthropic *resty.Client

	openAIModel string
	claudeModel string
	maxTokens   int
	temperature float64
}

func NewAdapter(cfg config.LLMConfig) *Adapter {
	a := &Adapter{
		openAIModel: orDefault(cfg.DefaultModel, DefaultOpenAIModel),
		claudeModel: orDefault(cfg.DefaultClaudeModel, DefaultClaudeModel),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if a.maxTokens <= 0 {
		a.maxTokens = 1000
	}
	if a.temperature < 0 {
		a.temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		a.openai = resty.New().
			SetBaseURL(strings.TrimRight(orDefault(cfg.OpenAIBaseURL, defaultOpenAIBaseURL), "/")).
			SetTimeout(timeout).
			SetAuthToken(key).
			SetHeader("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(cfg.AnthropicAPIKey); key != "" {
		a.anthropic = resty.New().
			SetBaseURL(strings.TrimRight(orDefault(cfg.AnthropicBaseURL, defaultAnthropicBaseURL), "/")).
			SetTimeout(timeout).
			SetHeader("x-api-key", key).
			SetHeader("anthropic-version", anthropicVersion).
			SetHeader("Content-Type", "application/json")
	}
	return a
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

// Configured reports whether the provider has a credential.
func (a *Adapter) Configured(p Provider) bool {
	if p == ProviderClaude {
		return a.anthropic != nil
	}
	return a.openai != nil
}

func (a *Adapter) model(req Request) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	if req.Provider == ProviderClaude {
		return a.claudeModel
	}
	return a.openAIModel
}

// Complete returns one full response.
func (a *Adapter) Complete(ctx context.Context, req Request) (Completion, error) {
	if !a.Configured(req.Provider) {
		return Completion{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, req.Provider)
	}
	model := a.model(req)
	log := logger.From(ctx).With("provider", string(req.Provider), "model", model)
	log.Info("llm request", "stream", false)

	var (
		c   Completion
		err error
	)
	if req.Provider == ProviderClaude {
		c, err = a.completeClaude(ctx, model, req.Messages)
	} else {
		c, err = a.completeOpenAI(ctx, model, req.Messages)
	}
	if err != nil {
		log.Error("llm request failed", "err", err)
		return Completion{}, err
	}
	return c, nil
}

// Stream opens a streaming response. The only error returned is
// ErrProviderNotConfigured; every upstream failure arrives as the stream's
// terminal error event.
func (a *Adapter) Stream(ctx context.Context, req Request) (*Stream, error) {
	if !a.Configured(req.Provider) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, req.Provider)
	}
	model := a.model(req)
	log := logger.From(ctx).With("provider", string(req.Provider), "model", model)
	log.Info("llm request", "stream", true)

	var (
		client *resty.Client
		path   string
		body   any
		dec    decoder
	)
	if req.Provider == ProviderClaude {
		client, path = a.anthropic, "/messages"
		body = a.claudeBody(model, req.Messages, true)
		dec = &claudeDecoder{model: model, log: log}
	} else {
		client, path = a.openai, "/chat/completions"
		body = a.openAIBody(model, req.Messages, true)
		dec = &openAIDecoder{model: model, log: log}
	}

	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		Post(path)
	if err != nil {
		log.Error("llm stream failed", "err", err)
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		return failedStream(err.Error()), nil
	}
	raw := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		msg := ""
		if raw != nil {
			b, _ := io.ReadAll(io.LimitReader(raw, maxErrorBody))
			_ = raw.Close()
			msg = upstreamMessage(b)
		}
		uerr := &UpstreamError{Provider: req.Provider, Status: resp.StatusCode(), Message: msg}
		log.Error("llm stream rejected", "status", resp.StatusCode(), "err", uerr)
		return failedStream(uerr.Error()), nil
	}
	if raw == nil {
		return failedStream("empty upstream response"), nil
	}
	return newStream(ctx, raw, dec), nil
}

// Models lists the selectable models and whether their provider is configured.
func (a *Adapter) Models() map[Provider][]ModelInfo {
	openai := a.Configured(ProviderOpenAI)
	claude := a.Configured(ProviderClaude)
	return map[Provider][]ModelInfo{
		ProviderOpenAI: {
			{ID: "gpt-4", Name: "GPT-4", Available: openai},
			{ID: "gpt-4-turbo-preview", Name: "GPT-4 Turbo", Available: openai},
			{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Available: openai},
		},
		ProviderClaude: {
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Available: claude},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Available: claude},
			{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", Available: claude},
		},
	}
}

type apiErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// upstreamMessage extracts error.message from a provider error body, which
// both providers shape the same way.
func upstreamMessage(b []byte) string {
	var env apiErrorEnvelope
	if err := json.Unmarshal(b, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

func logUsage(log *slog.Logger, u *Usage) {
	if u == nil {
		return
	}
	log.Info("llm usage", "prompt_tokens", u.PromptTokens, "completion_tokens", u.CompletionTokens, "total_tokens", u.TotalTokens)
}
