package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ai-receptionist/internal/auth"
	"ai-receptionist/internal/llm"
	"ai-receptionist/pkg/logger"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Provider is the slice of the LLM adapter the chat surface uses.
type Provider interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
	Stream(ctx context.Context, req llm.Request) (*llm.Stream, error)
	Configured(p llm.Provider) bool
	Models() map[llm.Provider][]llm.ModelInfo
}

// Handler serves the text chat endpoints. The text path never touches call state.
type Handler struct {
	LLM          Provider
	SystemPrompt string
	// Timeout bounds one chat exchange, streaming included.
	Timeout  time.Duration
	Upgrader websocket.Upgrader
}

const version = "1.0.0"

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 2 * time.Minute
	}
	return h.Timeout
}

func requestLogger(c *gin.Context) *slog.Logger {
	l := logger.FromGin(c)
	if tid, err := auth.TenantID(c.Request.Context()); err == nil {
		l = l.With("tenant_id", tid)
	}
	return l
}

func bindChat(c *gin.Context) (chatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": []fieldError{{"body", "invalid json"}}})
		return req, false
	}
	if errs := req.validate(); len(errs) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": errs})
		return req, false
	}
	return req, true
}

// Chat returns one complete answer.
func (h Handler) Chat(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	log := requestLogger(c)
	ctx, cancel := context.WithTimeout(logger.With(c.Request.Context(), log), h.timeout())
	defer cancel()

	lreq := req.toLLM(h.SystemPrompt)
	res, err := h.LLM.Complete(ctx, lreq)
	if err != nil {
		if errors.Is(err, llm.ErrProviderNotConfigured) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Provider not configured", "provider": lreq.Provider})
			return
		}
		log.Error("chat failed", "provider", lreq.Provider, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Failed to get response from AI"})
		return
	}
	attrs := []any{"provider", lreq.Provider, "model", res.Model}
	if res.Usage != nil {
		attrs = append(attrs, "total_tokens", res.Usage.TotalTokens)
	}
	log.Info("chat completed", attrs...)
	c.JSON(http.StatusOK, res)
}

// Stream relays the event protocol as server-sent events, one data frame per event.
func (h Handler) Stream(c *gin.Context) {
	req, ok := bindChat(c)
	if !ok {
		return
	}
	log := requestLogger(c)
	ctx, cancel := context.WithTimeout(logger.With(c.Request.Context(), log), h.timeout())
	defer cancel()

	lreq := req.toLLM(h.SystemPrompt)
	s, err := h.LLM.Stream(ctx, lreq)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Provider not configured", "provider": lreq.Provider})
		return
	}
	defer s.Close()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	log.Info("chat stream started", "provider", lreq.Provider, "model", lreq.Model)
	n := relay(c.Request.Context(), s, func(ev llm.Event) error {
		if err := sse.Encode(w, sse.Event{Data: ev}); err != nil {
			return err
		}
		w.Flush()
		return nil
	})
	log.Info("chat stream finished", "events", n, "client_gone", c.Request.Context().Err() != nil)
}

// relay pulls events until the stream ends, the client goes away or a write
// fails. It returns the number of events written. client is the connection's
// context, not the LLM deadline: a deadline still yields its terminal event.
func relay(client context.Context, s *llm.Stream, write func(llm.Event) error) int {
	n := 0
	for s.Next() {
		if client.Err() != nil {
			return n
		}
		if err := write(s.Event()); err != nil {
			return n
		}
		n++
	}
	return n
}

// WebSocket serves the same protocol over a socket: each text frame from the
// client is a chat request, answered by one JSON frame per event.
func (h Handler) WebSocket(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	log := requestLogger(c)
	base := logger.With(c.Request.Context(), log)

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Debug("chat socket read ended", "err", err)
			}
			return
		}
		if errs := req.validate(); len(errs) > 0 {
			if err := conn.WriteJSON(gin.H{"type": llm.EventError, "error": "Invalid input", "details": errs}); err != nil {
				return
			}
			continue
		}
		if !h.streamTurn(base, conn, req) {
			return
		}
	}
}

func (h Handler) streamTurn(base context.Context, conn *websocket.Conn, req chatRequest) bool {
	ctx, cancel := context.WithTimeout(base, h.timeout())
	defer cancel()

	lreq := req.toLLM(h.SystemPrompt)
	s, err := h.LLM.Stream(ctx, lreq)
	if err != nil {
		return conn.WriteJSON(llm.Event{Type: llm.EventError, Error: "Provider not configured"}) == nil
	}
	defer s.Close()

	failed := false
	relay(base, s, func(ev llm.Event) error {
		if err := conn.WriteJSON(ev); err != nil {
			failed = true
			return err
		}
		return nil
	})
	return !failed
}

func (h Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, h.LLM.Models())
}

func (h Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version,
		"services": gin.H{
			"openai": h.LLM.Configured(llm.ProviderOpenAI),
			"claude": h.LLM.Configured(llm.ProviderClaude),
		},
	})
}
