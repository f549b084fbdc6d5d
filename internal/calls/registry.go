package calls

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ai-receptionist/internal/telephony"
	"ai-receptionist/pkg/logger"

	"github.com/google/uuid"
)

var ErrMissingCorrelation = errors.New("calls: call id and conversation id are required")

// RegistryConfig holds the voice bridge parameters handed to the telephony provider.
type RegistryConfig struct {
	// ConvAIURL is the websocket endpoint of the conversational agent.
	ConvAIURL string
	// APIKey authorizes the provider's websocket connection to the agent.
	APIKey           string
	AudioContentType string
	// PublicBaseURL is where the provider posts call status events.
	PublicBaseURL string
	// ConnectingTTL bounds how long a call may wait for its conversation to start.
	ConnectingTTL time.Duration
}

// Registry owns the call lifecycle: connecting -> connected -> completed.
// It implements telephony.InboundRouter and telephony.StatusSink.
type Registry struct {
	repo  Repository
	slots SlotLimiter
	cfg   RegistryConfig
	now   func() time.Time
	newID func() string
}

func NewRegistry(repo Repository, slots SlotLimiter, cfg RegistryConfig) *Registry {
	if cfg.ConnectingTTL <= 0 {
		cfg.ConnectingTTL = 10 * time.Minute
	}
	return &Registry{
		repo:  repo,
		slots: slots,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

var (
	_ telephony.InboundRouter = (*Registry)(nil)
	_ telephony.StatusSink    = (*Registry)(nil)
)

// RouteInboundCall creates a connecting call for the dialed number and returns the
// bridge parameters. No call row is created when the number or agent is missing.
func (r *Registry) RouteInboundCall(ctx context.Context, req telephony.InboundCallRequest) (telephony.InboundCallResult, error) {
	log := logger.From(ctx)

	num, ok, err := r.repo.FindActivePhoneNumber(ctx, req.To)
	if err != nil {
		return telephony.Talk(telephony.MessageUnavailable), fmt.Errorf("calls: phone number lookup: %w", err)
	}
	if !ok {
		log.Warn("no active tenant for number", "to", req.To)
		return telephony.Talk(telephony.MessageNotInService), nil
	}

	log = logger.WithCall(log, num.TenantID, "", "")
	agent, ok, err := r.repo.FindActiveAgent(ctx, num.TenantID)
	if err != nil {
		return telephony.Talk(telephony.MessageUnavailable), fmt.Errorf("calls: agent lookup: %w", err)
	}
	if !ok {
		log.Error("no active agent for tenant")
		return telephony.Talk(telephony.MessageUnavailable), nil
	}

	callID := r.newID()
	log = logger.WithCall(log, "", callID, "")

	if r.slots != nil {
		acquired, err := r.slots.Acquire(ctx, num.TenantID, callID)
		switch {
		case err != nil:
			log.Warn("call slot acquire failed, admitting call", "err", err)
		case !acquired:
			log.Warn("tenant call limit reached")
			return telephony.Talk(telephony.MessageLinesBusy), nil
		}
	}

	now := r.now().UTC()
	call := Call{
		CallID:         callID,
		TenantID:       num.TenantID,
		ExternalCallID: req.ProviderCallID,
		From:           req.From,
		To:             req.To,
		Status:         CallStatusConnecting,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.repo.CreateCall(ctx, call); err != nil {
		r.release(ctx, num.TenantID, callID)
		return telephony.Talk(telephony.MessageUnavailable), fmt.Errorf("calls: create call: %w", err)
	}
	log.Info("call record created", "provider_call_id", req.ProviderCallID)

	return telephony.InboundCallResult{
		TenantID: num.TenantID,
		CallID:   callID,
		Action:   telephony.InboundCallActionConnect,
		Bridge: &telephony.Bridge{
			URI:         bridgeURI(r.cfg.ConvAIURL, agent.ExternalAgentID),
			ContentType: r.cfg.AudioContentType,
			Headers: map[string]string{
				"Authorization": "Bearer " + r.cfg.APIKey,
				"X-Tenant-ID":   num.TenantID,
				"X-Call-ID":     callID,
			},
		},
		EventURL: strings.TrimRight(r.cfg.PublicBaseURL, "/") + "/webhooks/vonage/events?call_id=" + url.QueryEscape(callID),
	}, nil
}

func bridgeURI(base, agentID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?agent_id=" + url.QueryEscape(agentID)
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ApplyTelephonyStatus stores the provider status verbatim; legality of the
// transition is not checked. Terminal statuses free the tenant's call slot.
func (r *Registry) ApplyTelephonyStatus(ctx context.Context, ev telephony.StatusEvent) error {
	at := ev.OccurredAt
	if at.IsZero() {
		at = r.now()
	}
	ref, ok, err := r.repo.UpdateTelephonyStatus(ctx, ev.CallID, ev.ProviderCallID, ev.Status, at.UTC())
	if err != nil {
		return fmt.Errorf("calls: update status: %w", err)
	}
	if !ok {
		logger.From(ctx).Debug("status event for unknown call", "call_id", ev.CallID, "provider_call_id", ev.ProviderCallID)
		return nil
	}
	if telephony.IsTerminalStatus(ev.Status) {
		r.release(ctx, ref.TenantID, ref.CallID)
	}
	return nil
}

// BindConversation ties a provider conversation to a call and marks it connected.
// Replays with the same id succeed; a different id never overwrites the binding.
func (r *Registry) BindConversation(ctx context.Context, callID, conversationID string) (CallRef, bool, error) {
	if callID == "" || conversationID == "" {
		return CallRef{}, false, ErrMissingCorrelation
	}
	ref, ok, err := r.repo.BindConversation(ctx, callID, conversationID, r.now().UTC())
	if err != nil {
		return CallRef{}, false, fmt.Errorf("calls: bind conversation: %w", err)
	}
	log := logger.WithCall(logger.From(ctx), ref.TenantID, callID, conversationID)
	if !ok {
		log.Warn("conversation not bound: unknown call or already bound elsewhere")
		return CallRef{}, false, nil
	}
	log.Info("conversation started")
	return ref, true, nil
}

// FindByConversation resolves the call bound to a conversation.
func (r *Registry) FindByConversation(ctx context.Context, conversationID string) (CallRef, bool, error) {
	if conversationID == "" {
		return CallRef{}, false, nil
	}
	return r.repo.FindByConversation(ctx, conversationID)
}

// TurnInput is one transcript utterance reported by the conversational agent.
type TurnInput struct {
	ConversationID string
	Speaker        string
	Message        string
	TurnNumber     int
}

// AppendTurn stores a transcript turn. Unknown conversations are dropped and
// reported as (false, nil).
func (r *Registry) AppendTurn(ctx context.Context, in TurnInput) (bool, error) {
	ref, ok, err := r.FindByConversation(ctx, in.ConversationID)
	if err != nil {
		return false, fmt.Errorf("calls: find conversation: %w", err)
	}
	if !ok {
		logger.From(ctx).Debug("turn for unknown conversation dropped", "conversation_id", in.ConversationID)
		return false, nil
	}
	speaker := in.Speaker
	if speaker == "" {
		speaker = "unknown"
	}
	t := ConversationTurn{
		ID:         r.newID(),
		CallID:     ref.CallID,
		TenantID:   ref.TenantID,
		Speaker:    speaker,
		Message:    in.Message,
		TurnNumber: in.TurnNumber,
		Timestamp:  r.now().UTC(),
	}
	if err := r.repo.AppendTurn(ctx, t); err != nil {
		return false, fmt.Errorf("calls: append turn: %w", err)
	}
	return true, nil
}

// CompleteConversation finalises the call bound to the conversation in one update.
// A miss returns (zero, false, nil) and callers must skip usage reconciliation.
func (r *Registry) CompleteConversation(ctx context.Context, in Completion) (CallRef, bool, error) {
	if in.ConversationID == "" {
		return CallRef{}, false, nil
	}
	if in.EndedAt.IsZero() {
		in.EndedAt = r.now().UTC()
	}
	if in.DurationSeconds < 0 {
		in.DurationSeconds = 0
	}
	ref, ok, err := r.repo.CompleteByConversation(ctx, in)
	if err != nil {
		return CallRef{}, false, fmt.Errorf("calls: complete: %w", err)
	}
	log := logger.WithCall(logger.From(ctx), ref.TenantID, ref.CallID, in.ConversationID)
	if !ok {
		log.Warn("conversation ended for unknown call")
		return CallRef{}, false, nil
	}
	r.release(ctx, ref.TenantID, ref.CallID)
	log.Info("call completed", "duration_seconds", in.DurationSeconds)
	return ref, true, nil
}

// ExpireStale abandons calls whose conversation never started within the TTL.
func (r *Registry) ExpireStale(ctx context.Context) (int, error) {
	now := r.now().UTC()
	refs, err := r.repo.ExpireStale(ctx, now.Add(-r.cfg.ConnectingTTL), now)
	if err != nil {
		return 0, fmt.Errorf("calls: expire stale: %w", err)
	}
	for _, ref := range refs {
		r.release(ctx, ref.TenantID, ref.CallID)
		logger.WithCall(logger.From(ctx), ref.TenantID, ref.CallID, "").Info("call abandoned before connecting")
	}
	return len(refs), nil
}

func (r *Registry) release(ctx context.Context, tenantID, callID string) {
	if r.slots == nil {
		return
	}
	if err := r.slots.Release(ctx, tenantID, callID); err != nil {
		logger.From(ctx).Warn("call slot release failed", "tenant_id", tenantID, "call_id", callID, "err", err)
	}
}
