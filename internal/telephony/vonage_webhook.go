package telephony

import (
	"net/http"
	"time"

	"ai-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// VonageWebhookHandler converts Vonage webhooks to internal types,
// delegates to the router/status sink, and writes NCCO.
//
// No business logic here.
type VonageWebhookHandler struct {
	Router   InboundRouter
	Statuses StatusSink
	Now      func() time.Time
}

func (h VonageWebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// HandleAnswer serves GET|POST /webhooks/vonage/answer.
// The provider always receives a playable NCCO, including on internal failures.
func (h VonageWebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	in, err := ParseVonageInbound(c.Request)
	if err != nil {
		log.Warn("vonage answer parse failed", "err", err)
		h.writeNCCO(c, Talk(MessageNotInService))
		return
	}
	log.Info("incoming call", "from", in.From, "to", in.To, "provider_call_id", in.UUID)

	if h.Router == nil {
		log.Error("inbound router not configured")
		h.writeNCCO(c, Talk(MessageUnavailable))
		return
	}

	res, err := h.Router.RouteInboundCall(c.Request.Context(), in.ToInboundCallRequest(h.now()))
	if err != nil {
		log.Error("inbound call routing failed", "err", err, "to", in.To)
		if res.Action == "" {
			res = Talk(MessageUnavailable)
		}
	}
	h.writeNCCO(c, res)
}

func (h VonageWebhookHandler) writeNCCO(c *gin.Context, res InboundCallResult) {
	ncco, err := RenderNCCO(res)
	if err != nil {
		logger.FromGin(c).Error("ncco render failed", "err", err)
		ncco, _ = RenderNCCO(Talk(MessageUnavailable))
	}
	c.JSON(http.StatusOK, ncco)
}

// HandleEvent serves POST /webhooks/vonage/events?call_id=...
// It always acknowledges; update failures are logged only.
func (h VonageWebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseVonageEvent(c.Request)
	if err != nil {
		log.Warn("vonage event parse failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	se := StatusEvent{
		CallID:         c.Query("call_id"),
		ProviderCallID: ev.UUID,
		Status:         ev.Status,
		OccurredAt:     h.now(),
	}
	log.Info("vonage event", "status", se.Status, "call_id", se.CallID, "provider_call_id", se.ProviderCallID)

	if h.Statuses != nil && se.Status != "" && (se.CallID != "" || se.ProviderCallID != "") {
		if err := h.Statuses.ApplyTelephonyStatus(c.Request.Context(), se); err != nil {
			log.Error("call status update failed", "err", err, "call_id", se.CallID)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
