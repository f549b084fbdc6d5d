package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-receptionist/internal/telephony"
	"ai-receptionist/internal/usage"
)

// MemoryRepo is an in-memory Repository and usage.Store for tests and local runs.
// Each method holds the lock for its whole body, mirroring single-statement atomicity.
type MemoryRepo struct {
	mu sync.Mutex

	numbers map[string]PhoneNumber
	agents  map[string]AgentConfiguration
	calls   map[string]*Call
	turns   []ConversationTurn
	tools   []ToolExecution
	minutes map[string]usage.MonthlyUsage
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		numbers: map[string]PhoneNumber{},
		agents:  map[string]AgentConfiguration{},
		calls:   map[string]*Call{},
		minutes: map[string]usage.MonthlyUsage{},
	}
}

func (r *MemoryRepo) AddPhoneNumber(p PhoneNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers[p.PhoneNumber] = p
}

func (r *MemoryRepo) AddAgent(a AgentConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.TenantID] = a
}

func (r *MemoryRepo) FindActivePhoneNumber(_ context.Context, number string) (PhoneNumber, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.numbers[number]
	if !ok || p.Status != PhoneNumberActive {
		return PhoneNumber{}, false, nil
	}
	return p, true, nil
}

func (r *MemoryRepo) FindActiveAgent(_ context.Context, tenantID string) (AgentConfiguration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[tenantID]
	if !ok || !a.IsActive {
		return AgentConfiguration{}, false, nil
	}
	return a, true, nil
}

func (r *MemoryRepo) CreateCall(_ context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := c
	r.calls[c.CallID] = &cp
	return nil
}

func refOf(c *Call) CallRef {
	return CallRef{CallID: c.CallID, TenantID: c.TenantID, FromNumber: c.From}
}

func (r *MemoryRepo) UpdateTelephonyStatus(_ context.Context, callID, externalCallID, status string, at time.Time) (CallRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if (callID != "" && c.CallID == callID) || (callID == "" && externalCallID != "" && c.ExternalCallID == externalCallID) {
			c.Status = CallStatus(status)
			c.UpdatedAt = at
			return refOf(c), true, nil
		}
	}
	return CallRef{}, false, nil
}

func (r *MemoryRepo) BindConversation(_ context.Context, callID, conversationID string, at time.Time) (CallRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok || c.EndedAt != nil {
		return CallRef{}, false, nil
	}
	if c.ExternalConversationID != "" && c.ExternalConversationID != conversationID {
		return CallRef{}, false, nil
	}
	c.ExternalConversationID = conversationID
	c.Status = CallStatusConnected
	c.UpdatedAt = at
	return refOf(c), true, nil
}

func (r *MemoryRepo) findByConversationLocked(conversationID string) *Call {
	if conversationID == "" {
		return nil
	}
	for _, c := range r.calls {
		if c.ExternalConversationID == conversationID {
			return c
		}
	}
	return nil
}

func (r *MemoryRepo) FindByConversation(_ context.Context, conversationID string) (CallRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.findByConversationLocked(conversationID)
	if c == nil {
		return CallRef{}, false, nil
	}
	return refOf(c), true, nil
}

func (r *MemoryRepo) AppendTurn(_ context.Context, t ConversationTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return nil
}

func (r *MemoryRepo) CompleteByConversation(_ context.Context, in Completion) (CallRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.findByConversationLocked(in.ConversationID)
	if c == nil {
		return CallRef{}, false, nil
	}
	if c.EndedAt == nil {
		t := in.EndedAt
		c.EndedAt = &t
	}
	c.DurationSeconds = in.DurationSeconds
	c.Status = CallStatusCompleted
	c.RecordingURL = in.RecordingURL
	c.TranscriptURL = in.TranscriptURL
	c.Summary = in.Summary
	c.UpdatedAt = in.EndedAt
	return refOf(c), true, nil
}

func (r *MemoryRepo) ExpireStale(_ context.Context, cutoff, at time.Time) ([]CallRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallRef
	for _, c := range r.calls {
		if c.ExternalConversationID != "" || c.EndedAt != nil || !c.StartedAt.Before(cutoff) {
			continue
		}
		if c.Status == CallStatusCompleted || c.Status == CallStatusAbandoned || telephony.IsTerminalStatus(string(c.Status)) {
			continue
		}
		t := at
		c.Status = CallStatusAbandoned
		c.EndedAt = &t
		c.UpdatedAt = at
		out = append(out, refOf(c))
	}
	return out, nil
}

func (r *MemoryRepo) AppendToolExecution(_ context.Context, e ToolExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, e)
	return nil
}

func (r *MemoryRepo) GetCall(_ context.Context, tenantID, callID string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok || c.TenantID != tenantID {
		return Call{}, false, nil
	}
	return *c, true, nil
}

func (r *MemoryRepo) ListCalls(_ context.Context, tenantID string, f ListFilter) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.TenantID != tenantID {
			continue
		}
		if !f.From.IsZero() && c.StartedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !c.StartedAt.Before(f.To) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListTurns(_ context.Context, tenantID, callID string) ([]ConversationTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ConversationTurn
	for _, t := range r.turns {
		if t.TenantID == tenantID && t.CallID == callID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TurnNumber < out[j].TurnNumber })
	return out, nil
}

func (r *MemoryRepo) ListToolExecutions(_ context.Context, tenantID, callID string) ([]ToolExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ToolExecution
	for _, e := range r.tools {
		if e.TenantID == tenantID && e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AllToolExecutions returns every recorded execution, including call-less ones.
func (r *MemoryRepo) AllToolExecutions() []ToolExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToolExecution(nil), r.tools...)
}

// usage.Store

func (r *MemoryRepo) ApplyUsage(_ context.Context, ch usage.Charge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[ch.CallID]
	if !ok || c.TenantID != ch.TenantID || c.UsageReconciledAt != nil {
		return false, nil
	}
	t := ch.ReconciledAt
	c.ConvAICostMicros = ch.Cost.ConvAIMicros
	c.TelephonyCostMicros = ch.Cost.TelephonyMicros
	c.TotalCostMicros = ch.Cost.TotalMicros
	c.UsageReconciledAt = &t

	key := ch.TenantID + "|" + ch.BillingMonth.Format("2006-01")
	u := r.minutes[key]
	u.TenantID = ch.TenantID
	u.BillingMonth = ch.BillingMonth.Format("2006-01")
	u.TotalMinutes += ch.Cost.BillableMinutes
	u.UpdatedAt = ch.ReconciledAt
	r.minutes[key] = u
	return true, nil
}

func (r *MemoryRepo) ListUnreconciled(_ context.Context, limit int) ([]usage.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []usage.Entry
	for _, c := range r.calls {
		if c.Status != CallStatusCompleted || c.UsageReconciledAt != nil || c.EndedAt == nil {
			continue
		}
		out = append(out, usage.Entry{CallID: c.CallID, TenantID: c.TenantID, DurationSeconds: c.DurationSeconds, EndedAt: *c.EndedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) MonthlyUsage(_ context.Context, tenantID string, month time.Time) (usage.MonthlyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := month.Format("2006-01")
	u, ok := r.minutes[tenantID+"|"+key]
	if !ok {
		return usage.MonthlyUsage{TenantID: tenantID, BillingMonth: key}, nil
	}
	return u, nil
}
