package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
)

type openAIRequest struct {
	Model         string               `json:"model"`
	Messages      []Message            `json:"messages"`
	MaxTokens     int                  `json:"max_tokens"`
	Temperature   float64              `json:"temperature"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *openAIUsage) normalise() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) openAIBody(model string, msgs []Message, stream bool) openAIRequest {
	body := openAIRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Stream:      stream,
	}
	if stream {
		body.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return body
}

func (a *Adapter) completeOpenAI(ctx context.Context, model string, msgs []Message) (Completion, error) {
	var out openAIResponse
	var apiErr apiErrorEnvelope
	resp, err := a.openai.R().
		SetContext(ctx).
		SetBody(a.openAIBody(model, msgs, false)).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return Completion{}, err
	}
	if resp.IsError() {
		return Completion{}, &UpstreamError{Provider: ProviderOpenAI, Status: resp.StatusCode(), Message: apiErr.Error.Message}
	}
	if len(out.Choices) == 0 {
		return Completion{}, errors.New("openai: response contained no choices")
	}
	return Completion{Message: out.Choices[0].Message.Content, Model: model, Usage: out.Usage.normalise()}, nil
}

// openAIDecoder reads chat.completion.chunk frames. Usage arrives in a trailing
// frame with empty choices when include_usage is set; [DONE] ends the stream.
type openAIDecoder struct {
	model string
	usage *Usage
	log   *slog.Logger
}

func (d *openAIDecoder) decode(f frame) []Event {
	data := strings.TrimSpace(f.Data)
	if data == "" {
		return nil
	}
	if data == "[DONE]" {
		logUsage(d.log, d.usage)
		return []Event{doneEvent(d.model, d.usage)}
	}
	var c openAIChunk
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		d.log.Error("llm stream frame undecodable", "err", err)
		return []Event{errorEvent("invalid stream frame from upstream")}
	}
	if c.Error != nil {
		return []Event{errorEvent(c.Error.Message)}
	}
	if c.Usage != nil {
		d.usage = c.Usage.normalise()
	}
	var out []Event
	for _, ch := range c.Choices {
		if ch.Delta.Content != "" {
			out = append(out, chunkEvent(d.model, ch.Delta.Content))
		}
	}
	return out
}

func (d *openAIDecoder) eof() Event {
	return errorEvent("upstream stream ended before completion")
}
