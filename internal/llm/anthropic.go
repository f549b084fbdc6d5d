package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

type claudeRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type claudeUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage claudeUsage `json:"usage"`
}

type claudeEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage claudeUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *claudeUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// splitSystem moves the first system message into the top-level system field,
// which the messages API requires.
func splitSystem(msgs []Message) (string, []Message) {
	system := ""
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		out = append(out, m)
	}
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemMessage
	}
	return system, out
}

func (a *Adapter) claudeBody(model string, msgs []Message, stream bool) claudeRequest {
	system, rest := splitSystem(msgs)
	return claudeRequest{Model: model, MaxTokens: a.maxTokens, System: system, Messages: rest, Stream: stream}
}

func (a *Adapter) completeClaude(ctx context.Context, model string, msgs []Message) (Completion, error) {
	var out claudeResponse
	var apiErr apiErrorEnvelope
	resp, err := a.anthropic.R().
		SetContext(ctx).
		SetBody(a.claudeBody(model, msgs, false)).
		SetResult(&out).
		SetError(&apiErr).
		Post("/messages")
	if err != nil {
		return Completion{}, err
	}
	if resp.IsError() {
		return Completion{}, &UpstreamError{Provider: ProviderClaude, Status: resp.StatusCode(), Message: apiErr.Error.Message}
	}
	var text strings.Builder
	for _, b := range out.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	var u claudeTally
	u.apply(&out.Usage)
	return Completion{Message: text.String(), Model: model, Usage: u.usage()}, nil
}

// claudeTally keeps the latest reported counts. message_start carries input
// tokens and a provisional output count; message_delta carries the final one.
type claudeTally struct {
	seen   bool
	input  int
	output int
}

func (t *claudeTally) apply(u *claudeUsage) {
	if u == nil {
		return
	}
	if u.InputTokens != nil {
		t.input = *u.InputTokens
		t.seen = true
	}
	if u.OutputTokens != nil {
		t.output = *u.OutputTokens
		t.seen = true
	}
}

func (t *claudeTally) usage() *Usage {
	if !t.seen {
		return nil
	}
	return &Usage{PromptTokens: t.input, CompletionTokens: t.output, TotalTokens: t.input + t.output}
}

type claudeDecoder struct {
	model string
	tally claudeTally
	log   *slog.Logger
}

func (d *claudeDecoder) decode(f frame) []Event {
	data := strings.TrimSpace(f.Data)
	if data == "" {
		return nil
	}
	var ev claudeEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		d.log.Error("llm stream frame undecodable", "err", err)
		return []Event{errorEvent("invalid stream frame from upstream")}
	}
	kind := ev.Type
	if kind == "" {
		kind = f.Event
	}
	switch kind {
	case "message_start":
		if ev.Message != nil {
			d.tally.apply(&ev.Message.Usage)
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Text != "" {
			return []Event{chunkEvent(d.model, ev.Delta.Text)}
		}
	case "message_delta":
		d.tally.apply(ev.Usage)
	case "message_stop":
		u := d.tally.usage()
		logUsage(d.log, u)
		return []Event{doneEvent(d.model, u)}
	case "error":
		msg := "upstream error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		return []Event{errorEvent(msg)}
	}
	return nil
}

func (d *claudeDecoder) eof() Event {
	return errorEvent("upstream stream ended before completion")
}
