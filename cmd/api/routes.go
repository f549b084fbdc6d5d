package main

import (
	"context"
	"net/http"
	"time"

	"ai-receptionist/internal/auth"
	"ai-receptionist/internal/chat"
	"ai-receptionist/internal/convai"
	"ai-receptionist/internal/httpapi"
	"ai-receptionist/internal/rbac"
	"ai-receptionist/internal/telephony"

	"github.com/gin-gonic/gin"
)

// deps holds everything routes need. main builds it once; tests build it from
// in-memory repositories.
type deps struct {
	Resolver *auth.Resolver
	Vonage   telephony.VonageWebhookHandler
	ConvAI   convai.WebhookHandler
	Chat     chat.Handler
	API      httpapi.Handlers
	// Ready reports backing store health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	r.GET("/healthz", func(c *gin.Context) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: signature validation for Vonage and ElevenLabs is not implemented.
	{
		r.GET("/webhooks/vonage/answer", d.Vonage.HandleAnswer)
		r.POST("/webhooks/vonage/answer", d.Vonage.HandleAnswer)
		r.POST("/webhooks/vonage/events", d.Vonage.HandleEvent)

		el := r.Group("/webhooks/elevenlabs")
		el.POST("/tool-call", d.ConvAI.ToolCall)
		el.POST("/conversation-started", d.ConvAI.ConversationStarted)
		el.POST("/conversation-turn", d.ConvAI.ConversationTurn)
		el.POST("/conversation-ended", d.ConvAI.ConversationEnded)
	}

	// Text chat; anonymous use is allowed, the tenant is attached when resolvable.
	api := r.Group("/api")
	api.Use(auth.OptionalTenant(d.Resolver))
	{
		api.GET("/health", d.Chat.Health)
		api.GET("/models", d.Chat.Models)
		api.POST("/chat", d.Chat.Chat)
		api.POST("/chat/stream", d.Chat.Stream)
		api.GET("/chat/ws", d.Chat.WebSocket)
	}

	// Tenant read API.
	v1 := r.Group("/v1")
	v1.Use(httpapi.RequireTenantAndAnyRole(d.Resolver, rbac.ReadRoles...)...)
	{
		v1.GET("/me", d.API.Me)
		v1.GET("/calls", d.API.ListCalls)
		v1.GET("/calls/:call_id", d.API.GetCall)
		v1.GET("/calls/:call_id/transcript", d.API.Transcript)
		v1.GET("/calls/:call_id/tools", d.API.ToolExecutions)
		v1.GET("/reports/calls", d.API.CallsReport)
		v1.GET("/usage", d.API.MonthlyUsage)
	}
}
