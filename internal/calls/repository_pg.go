package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ai-receptionist/pkg/utils"
)

// NOTE: This repository assumes the following:
// - phone_numbers (phone_number UNIQUE), stored exactly as the telephony provider sends it
// - agent_configurations (at most one is_active row per tenant)
// - calls.external_conversation_id UNIQUE when not null
// - conversation_turns and tool_executions (append-only)
type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) FindActivePhoneNumber(ctx context.Context, number string) (PhoneNumber, bool, error) {
	const q = `
SELECT phone_number, tenant_id, status
FROM phone_numbers
WHERE phone_number = $1
`
	var p PhoneNumber
	err := r.DB.QueryRowContext(ctx, q, number).Scan(&p.PhoneNumber, &p.TenantID, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, false, nil
	}
	if err != nil {
		return PhoneNumber{}, false, err
	}
	if p.Status != PhoneNumberActive {
		return PhoneNumber{}, false, nil
	}
	return p, true, nil
}

func (r *PostgresRepository) FindActiveAgent(ctx context.Context, tenantID string) (AgentConfiguration, bool, error) {
	const q = `
SELECT tenant_id, external_agent_id, COALESCE(greeting, ''), is_active
FROM agent_configurations
WHERE tenant_id = $1 AND is_active = true
LIMIT 1
`
	var a AgentConfiguration
	err := r.DB.QueryRowContext(ctx, q, tenantID).Scan(&a.TenantID, &a.ExternalAgentID, &a.Greeting, &a.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentConfiguration{}, false, nil
	}
	if err != nil {
		return AgentConfiguration{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepository) CreateCall(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  call_id, tenant_id, external_call_id, from_number, to_number, status, started_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$8
)
`
	_, err := r.DB.ExecContext(ctx, q,
		c.CallID,
		c.TenantID,
		utils.NullString(c.ExternalCallID),
		c.From,
		c.To,
		c.Status,
		c.StartedAt,
		c.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) UpdateTelephonyStatus(ctx context.Context, callID, externalCallID, status string, at time.Time) (CallRef, bool, error) {
	const byID = `
UPDATE calls SET status = $1, updated_at = $2
WHERE call_id = $3
RETURNING call_id, tenant_id, from_number
`
	const byExternal = `
UPDATE calls SET status = $1, updated_at = $2
WHERE external_call_id = $3
RETURNING call_id, tenant_id, from_number
`
	q, key := byID, callID
	if callID == "" {
		q, key = byExternal, externalCallID
	}
	if key == "" {
		return CallRef{}, false, nil
	}
	return scanRef(r.DB.QueryRowContext(ctx, q, status, at, key))
}

func (r *PostgresRepository) BindConversation(ctx context.Context, callID, conversationID string, at time.Time) (CallRef, bool, error) {
	const q = `
UPDATE calls
SET external_conversation_id = $1, status = 'connected', updated_at = $2
WHERE call_id = $3
  AND (external_conversation_id IS NULL OR external_conversation_id = $1)
  AND ended_at IS NULL
RETURNING call_id, tenant_id, from_number
`
	return scanRef(r.DB.QueryRowContext(ctx, q, conversationID, at, callID))
}

func (r *PostgresRepository) FindByConversation(ctx context.Context, conversationID string) (CallRef, bool, error) {
	const q = `
SELECT call_id, tenant_id, from_number
FROM calls
WHERE external_conversation_id = $1
`
	return scanRef(r.DB.QueryRowContext(ctx, q, conversationID))
}

func (r *PostgresRepository) AppendTurn(ctx context.Context, t ConversationTurn) error {
	const q = `
INSERT INTO conversation_turns (id, call_id, tenant_id, speaker, message, turn_number, timestamp)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.DB.ExecContext(ctx, q, t.ID, t.CallID, t.TenantID, t.Speaker, t.Message, t.TurnNumber, t.Timestamp)
	return err
}

func (r *PostgresRepository) CompleteByConversation(ctx context.Context, c Completion) (CallRef, bool, error) {
	const q = `
UPDATE calls
SET ended_at = COALESCE(ended_at, $1),
    duration_seconds = $2,
    status = 'completed',
    recording_url = $3,
    transcript_url = $4,
    summary = $5,
    updated_at = $1
WHERE external_conversation_id = $6
RETURNING call_id, tenant_id, from_number
`
	return scanRef(r.DB.QueryRowContext(ctx, q,
		c.EndedAt,
		c.DurationSeconds,
		utils.NullString(c.RecordingURL),
		utils.NullString(c.TranscriptURL),
		utils.NullString(c.Summary),
		c.ConversationID,
	))
}

func (r *PostgresRepository) ExpireStale(ctx context.Context, cutoff, at time.Time) ([]CallRef, error) {
	const q = `
UPDATE calls
SET status = 'abandoned', ended_at = $2, updated_at = $2
WHERE external_conversation_id IS NULL
  AND ended_at IS NULL
  AND started_at < $1
  AND status NOT IN ('completed', 'abandoned', 'failed', 'rejected', 'busy', 'cancelled', 'timeout', 'unanswered')
RETURNING call_id, tenant_id, from_number
`
	rows, err := r.DB.QueryContext(ctx, q, cutoff, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRef
	for rows.Next() {
		var ref CallRef
		if err := rows.Scan(&ref.CallID, &ref.TenantID, &ref.FromNumber); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendToolExecution(ctx context.Context, e ToolExecution) error {
	const q = `
INSERT INTO tool_executions (id, call_id, tenant_id, tool_name, parameters, response, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.DB.ExecContext(ctx, q,
		e.ID,
		utils.NullString(e.CallID),
		e.TenantID,
		e.ToolName,
		[]byte(e.Parameters),
		[]byte(e.Response),
		e.Status,
		e.CreatedAt,
	)
	return err
}

// MaxListLimit caps one ListCalls page.
const MaxListLimit = 5000

const callColumns = `
call_id, tenant_id, COALESCE(external_call_id, ''), COALESCE(external_conversation_id, ''),
from_number, to_number, status, started_at, ended_at, duration_seconds,
COALESCE(recording_url, ''), COALESCE(transcript_url, ''), COALESCE(summary, ''),
convai_cost_micros, telephony_cost_micros, total_cost_micros, usage_reconciled_at,
created_at, updated_at
`

func scanCall(s rowScanner) (Call, error) {
	var (
		c          Call
		ended      sql.NullTime
		reconciled sql.NullTime
	)
	if err := s.Scan(
		&c.CallID,
		&c.TenantID,
		&c.ExternalCallID,
		&c.ExternalConversationID,
		&c.From,
		&c.To,
		&c.Status,
		&c.StartedAt,
		&ended,
		&c.DurationSeconds,
		&c.RecordingURL,
		&c.TranscriptURL,
		&c.Summary,
		&c.ConvAICostMicros,
		&c.TelephonyCostMicros,
		&c.TotalCostMicros,
		&reconciled,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	if reconciled.Valid {
		t := reconciled.Time
		c.UsageReconciledAt = &t
	}
	return c, nil
}

func scanRef(s rowScanner) (CallRef, bool, error) {
	var ref CallRef
	err := s.Scan(&ref.CallID, &ref.TenantID, &ref.FromNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRef{}, false, nil
	}
	if err != nil {
		return CallRef{}, false, err
	}
	return ref, true, nil
}

func (r *PostgresRepository) GetCall(ctx context.Context, tenantID, callID string) (Call, bool, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 AND call_id = $2`
	c, err := scanCall(r.DB.QueryRowContext(ctx, q, tenantID, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepository) ListCalls(ctx context.Context, tenantID string, f ListFilter) ([]Call, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 100
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	q := `SELECT ` + callColumns + `
FROM calls
WHERE tenant_id = $1
  AND ($2::timestamptz IS NULL OR started_at >= $2)
  AND ($3::timestamptz IS NULL OR started_at < $3)
ORDER BY started_at DESC
LIMIT $4`
	rows, err := r.DB.QueryContext(ctx, q, tenantID, utils.NullTime(f.From), utils.NullTime(f.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListTurns(ctx context.Context, tenantID, callID string) ([]ConversationTurn, error) {
	const q = `
SELECT id, call_id, tenant_id, speaker, message, turn_number, timestamp
FROM conversation_turns
WHERE tenant_id = $1 AND call_id = $2
ORDER BY turn_number, timestamp
`
	rows, err := r.DB.QueryContext(ctx, q, tenantID, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationTurn
	for rows.Next() {
		var t ConversationTurn
		if err := rows.Scan(&t.ID, &t.CallID, &t.TenantID, &t.Speaker, &t.Message, &t.TurnNumber, &t.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListToolExecutions(ctx context.Context, tenantID, callID string) ([]ToolExecution, error) {
	const q = `
SELECT id, COALESCE(call_id::text, ''), tenant_id, tool_name, parameters, response, status, created_at
FROM tool_executions
WHERE tenant_id = $1 AND call_id = $2
ORDER BY created_at
`
	rows, err := r.DB.QueryContext(ctx, q, tenantID, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolExecution
	for rows.Next() {
		var (
			e            ToolExecution
			params, resp []byte
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.TenantID, &e.ToolName, &params, &resp, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Parameters = params
		e.Response = resp
		out = append(out, e)
	}
	return out, rows.Err()
}
