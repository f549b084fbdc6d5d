package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-receptionist/internal/calls"

	"github.com/google/uuid"
)

// Recorder is the persistence contract for tool executions.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Recorder interface {
	AppendToolExecution(ctx context.Context, e calls.ToolExecution) error
}

// ExecutionLog records one row per dispatched tool call.
//
// Callers should treat recording as best-effort; a failed write never changes
// the response returned to the agent.
type ExecutionLog struct {
	repo  Recorder
	clock func() time.Time
}

func NewExecutionLog(repo Recorder) *ExecutionLog {
	return &ExecutionLog{repo: repo, clock: time.Now}
}

var ErrInvalidExecution = errors.New("tools: invalid execution")

// Record appends one row. An empty tool name is stored as sent; the agent
// still gets an "Unknown tool" answer and the attempt must stay auditable.
func (l *ExecutionLog) Record(ctx context.Context, tenantID, callID string, tool Name, params json.RawMessage, payload Payload) error {
	if l == nil || l.repo == nil {
		return errors.New("tools: execution log not configured")
	}
	if tenantID == "" {
		return ErrInvalidExecution
	}
	if len(params) == 0 || !json.Valid(params) {
		params = json.RawMessage(`{}`)
	}
	resp, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	status := calls.ToolStatusSuccess
	if payload.Failed() {
		status = calls.ToolStatusFailed
	}
	return l.repo.AppendToolExecution(ctx, calls.ToolExecution{
		ID:         uuid.NewString(),
		CallID:     callID,
		TenantID:   tenantID,
		ToolName:   string(tool),
		Parameters: params,
		Response:   resp,
		Status:     status,
		CreatedAt:  l.clock().UTC(),
	})
}
