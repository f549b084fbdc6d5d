package calls

import (
	"encoding/json"
	"time"
)

// PhoneNumber maps a dialed number to the tenant that owns it.
type PhoneNumber struct {
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	Status      string `json:"status" db:"status"`
}

const PhoneNumberActive = "active"

// AgentConfiguration is the tenant's active conversational agent binding.
type AgentConfiguration struct {
	TenantID        string `json:"tenant_id" db:"tenant_id"`
	ExternalAgentID string `json:"external_agent_id" db:"external_agent_id"`
	Greeting        string `json:"greeting,omitempty" db:"greeting"`
	IsActive        bool   `json:"is_active" db:"is_active"`
}

// Call is one phone call's lifecycle.
//
// Multi-tenant invariant: TenantID is required on every row.
// ExternalConversationID is set at most once and is the correlation key for
// every conversation event after binding.
type Call struct {
	CallID                 string `json:"call_id" db:"call_id"`
	TenantID               string `json:"tenant_id" db:"tenant_id"`
	ExternalCallID         string `json:"external_call_id,omitempty" db:"external_call_id"`
	ExternalConversationID string `json:"external_conversation_id,omitempty" db:"external_conversation_id"`

	From string `json:"from_number" db:"from_number"`
	To   string `json:"to_number" db:"to_number"`

	// Status is one of the CallStatus values or a provider status stored verbatim.
	Status CallStatus `json:"status" db:"status"`

	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	RecordingURL  string `json:"recording_url,omitempty" db:"recording_url"`
	TranscriptURL string `json:"transcript_url,omitempty" db:"transcript_url"`
	Summary       string `json:"summary,omitempty" db:"summary"`

	ConvAICostMicros    int64      `json:"convai_cost_micros" db:"convai_cost_micros"`
	TelephonyCostMicros int64      `json:"telephony_cost_micros" db:"telephony_cost_micros"`
	TotalCostMicros     int64      `json:"total_cost_micros" db:"total_cost_micros"`
	UsageReconciledAt   *time.Time `json:"usage_reconciled_at,omitempty" db:"usage_reconciled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusConnecting CallStatus = "connecting"
	CallStatusConnected  CallStatus = "connected"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusAbandoned  CallStatus = "abandoned"
)

// CallRef identifies a call for correlation lookups.
type CallRef struct {
	CallID     string
	TenantID   string
	FromNumber string
}

// ConversationTurn is one utterance of a transcript. Append-only.
type ConversationTurn struct {
	ID         string    `json:"id" db:"id"`
	CallID     string    `json:"call_id" db:"call_id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Speaker    string    `json:"speaker" db:"speaker"`
	Message    string    `json:"message" db:"message"`
	TurnNumber int       `json:"turn_number" db:"turn_number"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// ToolExecution records one tool invocation. CallID is empty when the
// invocation could not be tied to a call.
type ToolExecution struct {
	ID         string          `json:"id" db:"id"`
	CallID     string          `json:"call_id,omitempty" db:"call_id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	ToolName   string          `json:"tool_name" db:"tool_name"`
	Parameters json.RawMessage `json:"parameters" db:"parameters"`
	Response   json.RawMessage `json:"response" db:"response"`
	Status     string          `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	ToolStatusSuccess = "success"
	ToolStatusFailed  = "failed"
)

// Completion carries the "conversation ended" payload.
type Completion struct {
	ConversationID  string
	DurationSeconds int
	RecordingURL    string
	TranscriptURL   string
	Summary         string
	EndedAt         time.Time
}

// ListFilter narrows tenant call listings. Zero times are open bounds.
type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}
