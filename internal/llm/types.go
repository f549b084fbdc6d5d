package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Provider selects the upstream chat-completion API.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
)

// ParseProvider maps a request selector onto a Provider. Anything other than
// "claude" selects OpenAI.
func ParseProvider(s string) Provider {
	if strings.EqualFold(strings.TrimSpace(s), string(ProviderClaude)) {
		return ProviderClaude
	}
	return ProviderOpenAI
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Provider Provider
	// Model overrides the provider default when set.
	Model    string
	Messages []Message
}

// Usage is normalised to OpenAI's naming for both providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage"`
}

const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event is one element of the streaming protocol: zero or more chunks, then
// exactly one done or error.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e Event) Terminal() bool { return e.Type == EventDone || e.Type == EventError }

func chunkEvent(model, content string) Event {
	return Event{Type: EventChunk, Content: content, Model: model}
}

func doneEvent(model string, u *Usage) Event {
	return Event{Type: EventDone, Model: model, Usage: u}
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg}
}

var ErrProviderNotConfigured = errors.New("llm: provider not configured")

// UpstreamError is a non-2xx answer from a provider API.
type UpstreamError struct {
	Provider Provider
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Provider, e.Status, e.Message)
}

// ModelInfo is one entry of the model catalogue.
type ModelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}
