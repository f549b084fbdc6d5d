package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ai-receptionist/internal/llm"
)

const (
	maxMessageChars = 5000
	maxHistory      = 50
	maxHistoryChars = 50000
	maxModelChars   = 100
)

type chatRequest struct {
	Message  string        `json:"message"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	History  []llm.Message `json:"history"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validate trims the message in place and returns every violation found.
func (r *chatRequest) validate() []fieldError {
	var errs []fieldError
	r.Message = strings.TrimSpace(r.Message)
	switch n := utf8.RuneCountInString(r.Message); {
	case n == 0:
		errs = append(errs, fieldError{"message", "Message cannot be empty or whitespace only"})
	case n > maxMessageChars:
		errs = append(errs, fieldError{"message", fmt.Sprintf("Message must be at most %d characters", maxMessageChars)})
	}

	switch r.Provider {
	case "", string(llm.ProviderOpenAI), string(llm.ProviderClaude):
	default:
		errs = append(errs, fieldError{"provider", "Provider must be openai or claude"})
	}
	if utf8.RuneCountInString(r.Model) > maxModelChars {
		errs = append(errs, fieldError{"model", fmt.Sprintf("Model must be at most %d characters", maxModelChars)})
	}

	if len(r.History) > maxHistory {
		errs = append(errs, fieldError{"history", fmt.Sprintf("Conversation history too long (max %d messages)", maxHistory)})
	}
	for i, m := range r.History {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			errs = append(errs, fieldError{fmt.Sprintf("history[%d].role", i), "Role must be system, user or assistant"})
		}
		if n := utf8.RuneCountInString(m.Content); n == 0 || n > maxHistoryChars {
			errs = append(errs, fieldError{fmt.Sprintf("history[%d].content", i), fmt.Sprintf("Content must be 1 to %d characters", maxHistoryChars)})
		}
	}
	return errs
}

// toLLM builds the conversation: history, then the new user message, with the
// system prompt prepended when no system message is present.
func (r *chatRequest) toLLM(systemPrompt string) llm.Request {
	msgs := make([]llm.Message, 0, len(r.History)+2)
	hasSystem := false
	for _, m := range r.History {
		if m.Role == llm.RoleSystem {
			hasSystem = true
		}
	}
	if !hasSystem && strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, r.History...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: r.Message})
	return llm.Request{
		Provider: llm.ParseProvider(r.Provider),
		Model:    strings.TrimSpace(r.Model),
		Messages: msgs,
	}
}
