package convai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/tools"
	"ai-receptionist/internal/usage"
	"ai-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerCallID   = "X-Call-ID"
)

// Lifecycle is the call registry surface driven by conversation events.
type Lifecycle interface {
	BindConversation(ctx context.Context, callID, conversationID string) (calls.CallRef, bool, error)
	AppendTurn(ctx context.Context, in calls.TurnInput) (bool, error)
	CompleteConversation(ctx context.Context, in calls.Completion) (calls.CallRef, bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req tools.Request) (tools.Result, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, e usage.Entry) (usage.Result, error)
}

// WebhookHandler serves the conversational agent's webhooks.
// Lifecycle endpoints always acknowledge so the agent never retries on our
// correlation misses; failures are logged with the conversation id.
type WebhookHandler struct {
	Calls Lifecycle
	Tools Dispatcher
	Usage Reconciler
	Now   func() time.Time
}

func (h WebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func ack(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ToolCall serves POST /webhooks/elevenlabs/tool-call.
func (h WebhookHandler) ToolCall(c *gin.Context) {
	log := logger.FromGin(c)
	var p toolCallPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Tools.Dispatch(c.Request.Context(), tools.Request{
		ConversationID: p.ConversationID,
		Tool:           p.name(),
		Parameters:     p.Parameters,
		HeaderTenantID: c.GetHeader(headerTenantID),
		HeaderCallID:   c.GetHeader(headerCallID),
	})
	if err != nil {
		if errors.Is(err, tools.ErrTenantContextNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Tenant context not found"})
			return
		}
		log.Error("tool call failed", "conversation_id", p.ConversationID, "tool", p.name(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Tool execution failed"})
		return
	}
	c.JSON(http.StatusOK, res.Payload)
}

// ConversationStarted binds the conversation to the call named by the X-Call-ID
// header set on the voice bridge, or by call_id in the body.
func (h WebhookHandler) ConversationStarted(c *gin.Context) {
	log := logger.FromGin(c)
	var p startedPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		log.Warn("conversation-started payload invalid", "err", err)
		ack(c)
		return
	}
	callID := strings.TrimSpace(c.GetHeader(headerCallID))
	if callID == "" {
		callID = strings.TrimSpace(p.CallID)
	}
	if callID == "" || p.ConversationID == "" {
		log.Warn("conversation-started without correlation", "conversation_id", p.ConversationID, "call_id", callID)
		ack(c)
		return
	}
	if _, _, err := h.Calls.BindConversation(c.Request.Context(), callID, p.ConversationID); err != nil {
		log.Error("conversation bind failed", "conversation_id", p.ConversationID, "call_id", callID, "err", err)
	}
	ack(c)
}

// ConversationTurn appends one transcript turn; unknown conversations are dropped.
func (h WebhookHandler) ConversationTurn(c *gin.Context) {
	log := logger.FromGin(c)
	var p turnPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		log.Warn("conversation-turn payload invalid", "err", err)
		ack(c)
		return
	}
	if _, err := h.Calls.AppendTurn(c.Request.Context(), calls.TurnInput{
		ConversationID: p.ConversationID,
		Speaker:        p.Speaker,
		Message:        p.Message,
		TurnNumber:     p.TurnNumber,
	}); err != nil {
		log.Error("conversation turn not stored", "conversation_id", p.ConversationID, "err", err)
	}
	ack(c)
}

// ConversationEnded completes the call, then reconciles usage only when the
// completion matched a call. Reconciliation failures leave the call completed;
// the background sweeper retries them.
func (h WebhookHandler) ConversationEnded(c *gin.Context) {
	log := logger.FromGin(c)
	var p endedPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		log.Warn("conversation-ended payload invalid", "err", err)
		ack(c)
		return
	}
	ctx := c.Request.Context()
	endedAt := h.now()
	ref, ok, err := h.Calls.CompleteConversation(ctx, calls.Completion{
		ConversationID:  p.ConversationID,
		DurationSeconds: int(p.DurationSeconds),
		RecordingURL:    p.RecordingURL,
		TranscriptURL:   p.TranscriptURL,
		Summary:         p.Summary,
		EndedAt:         endedAt,
	})
	if err != nil {
		log.Error("call completion failed", "conversation_id", p.ConversationID, "err", err)
		ack(c)
		return
	}
	if !ok || h.Usage == nil {
		ack(c)
		return
	}
	if _, err := h.Usage.Reconcile(ctx, usage.Entry{
		CallID:          ref.CallID,
		TenantID:        ref.TenantID,
		DurationSeconds: int(p.DurationSeconds),
		EndedAt:         endedAt,
	}); err != nil {
		logger.WithCall(log, ref.TenantID, ref.CallID, p.ConversationID).Error("usage reconciliation failed", "err", err)
	}
	ack(c)
}
