package calls

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Repository abstracts call persistence.
//
// Every mutation is a single conditional statement so concurrent webhook
// deliveries stay consistent without in-process locks. Correlation misses are
// reported as (zero, false, nil), never as errors.
type Repository interface {
	FindActivePhoneNumber(ctx context.Context, number string) (PhoneNumber, bool, error)
	FindActiveAgent(ctx context.Context, tenantID string) (AgentConfiguration, bool, error)

	CreateCall(ctx context.Context, c Call) error

	// UpdateTelephonyStatus overwrites status by call id, or by external call id
	// when callID is empty. It returns the affected call.
	UpdateTelephonyStatus(ctx context.Context, callID, externalCallID, status string, at time.Time) (CallRef, bool, error)

	// BindConversation sets the conversation id and status connected. It succeeds when
	// the call is unbound or already bound to the same id; it never rebinds.
	BindConversation(ctx context.Context, callID, conversationID string, at time.Time) (CallRef, bool, error)

	FindByConversation(ctx context.Context, conversationID string) (CallRef, bool, error)
	AppendTurn(ctx context.Context, t ConversationTurn) error

	// CompleteByConversation applies the final fields in one update.
	CompleteByConversation(ctx context.Context, c Completion) (CallRef, bool, error)

	// ExpireStale moves never-bound calls started before cutoff to abandoned.
	ExpireStale(ctx context.Context, cutoff, at time.Time) ([]CallRef, error)

	AppendToolExecution(ctx context.Context, e ToolExecution) error

	GetCall(ctx context.Context, tenantID, callID string) (Call, bool, error)
	ListCalls(ctx context.Context, tenantID string, f ListFilter) ([]Call, error)
	ListTurns(ctx context.Context, tenantID, callID string) ([]ConversationTurn, error)
	ListToolExecutions(ctx context.Context, tenantID, callID string) ([]ToolExecution, error)
}
