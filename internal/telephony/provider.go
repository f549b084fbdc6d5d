package telephony

import (
	"context"
	"time"
)

// Spoken fallbacks played when an inbound call cannot be bridged.
const (
	MessageNotInService = "This number is not in service. Please check the number and try again."
	MessageUnavailable  = "Our system is temporarily unavailable. Please try again later."
	MessageLinesBusy    = "All of our lines are busy right now. Please call back in a few minutes."
)

// InboundRouter decides what happens to a ringing call.
//
// Rules:
// - No provider wire formats beyond this package; routers see only the types below.
// - A result is always returned, even alongside an error, so the caller hears something.
type InboundRouter interface {
	RouteInboundCall(ctx context.Context, req InboundCallRequest) (InboundCallResult, error)
}

// StatusSink receives asynchronous telephony status notifications.
type StatusSink interface {
	ApplyTelephonyStatus(ctx context.Context, ev StatusEvent) error
}

// InboundCallRequest represents an inbound call event received from a provider.
type InboundCallRequest struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`

	From string `json:"from"`
	To   string `json:"to"`

	OccurredAt time.Time `json:"occurred_at"`
}

// InboundCallResult drives the provider's next step.
type InboundCallResult struct {
	TenantID string `json:"tenant_id,omitempty"`
	CallID   string `json:"call_id,omitempty"`

	Action InboundCallAction `json:"action"`

	// Message is spoken when Action == talk.
	Message string `json:"message,omitempty"`

	// Bridge and EventURL are used when Action == connect.
	Bridge   *Bridge `json:"bridge,omitempty"`
	EventURL string  `json:"event_url,omitempty"`
}

type InboundCallAction string

const (
	InboundCallActionTalk    InboundCallAction = "talk"
	InboundCallActionConnect InboundCallAction = "connect"
)

// Bridge is the websocket endpoint the provider streams call audio to.
type Bridge struct {
	URI         string            `json:"uri"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers"`
}

// Talk builds a speak-and-end result.
func Talk(message string) InboundCallResult {
	return InboundCallResult{Action: InboundCallActionTalk, Message: message}
}

// StatusEvent is a provider status notification. CallID is our identifier when the
// provider echoes it back; ProviderCallID is always the provider's own.
type StatusEvent struct {
	CallID         string
	ProviderCallID string
	Status         string
	OccurredAt     time.Time
}

// IsTerminalStatus reports whether a provider status ends the call leg.
func IsTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "rejected", "busy", "cancelled", "timeout", "unanswered":
		return true
	}
	return false
}
