package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-receptionist/internal/auth"
	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/chat"
	"ai-receptionist/internal/config"
	"ai-receptionist/internal/convai"
	"ai-receptionist/internal/httpapi"
	"ai-receptionist/internal/llm"
	"ai-receptionist/internal/pricing"
	"ai-receptionist/internal/reporting"
	"ai-receptionist/internal/scheduling"
	"ai-receptionist/internal/telephony"
	"ai-receptionist/internal/tools"
	"ai-receptionist/internal/usage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type app struct {
	engine *gin.Engine
	calls  *calls.MemoryRepo
	tokens *auth.Manager
}

func newApp(t *testing.T, ready func(context.Context) error) app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	callRepo := calls.NewMemoryRepo()
	// Numbers are stored the way Vonage delivers them.
	callRepo.AddPhoneNumber(calls.PhoneNumber{PhoneNumber: "15550001111", TenantID: "t1", Status: calls.PhoneNumberActive})
	callRepo.AddAgent(calls.AgentConfiguration{TenantID: "t1", ExternalAgentID: "agent-1", IsActive: true})
	reg := calls.NewRegistry(callRepo, nil, calls.RegistryConfig{
		ConvAIURL: "wss://convai.example/v1/convai/conversation", APIKey: "el-key", PublicBaseURL: "https://api.example",
	})

	schedRepo := scheduling.NewMemoryRepo()
	schedRepo.SetProfile(scheduling.BusinessProfile{TenantID: "t1", Name: "Acme Salon", Timezone: "UTC"})
	var hours []scheduling.BusinessHours
	for d := time.Sunday; d <= time.Saturday; d++ {
		hours = append(hours, scheduling.BusinessHours{Weekday: d, Opens: "00:00", Closes: "23:30"})
	}
	schedRepo.SetHours("t1", hours...)
	schedRepo.AddService(scheduling.Service{ServiceID: "s1", TenantID: "t1", Name: "Haircut", DurationMinutes: 30, IsActive: true})

	prices, err := pricing.NewService(pricing.Rates{ConvAIPerMinuteMicros: 20_000, TelephonyPerMinuteMicros: 12_000})
	require.NoError(t, err)
	recon := usage.NewReconciler(callRepo, prices)

	tokens, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret"})
	require.NoError(t, err)

	d := deps{
		Resolver: &auth.Resolver{Tokens: tokens},
		Vonage:   telephony.VonageWebhookHandler{Router: reg, Statuses: reg},
		ConvAI: convai.WebhookHandler{
			Calls: reg,
			Tools: tools.NewRouter(reg, scheduling.NewScheduler(schedRepo), tools.NewExecutionLog(callRepo)),
			Usage: recon,
		},
		Chat: chat.Handler{LLM: llm.NewAdapter(config.LLMConfig{})},
		API: httpapi.Handlers{
			Calls:   callRepo,
			Reports: reporting.NewService(callRepo),
			Usage:   recon,
		},
		Ready: ready,
	}
	r := gin.New()
	registerRoutes(r, d)
	return app{engine: r, calls: callRepo, tokens: tokens}
}

func (a app) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	a.engine.ServeHTTP(w, req)
	return w
}

func (a app) bearer(t *testing.T, role string) map[string]string {
	t.Helper()
	tok, err := a.tokens.Issue(time.Now(), "t1", "u1", role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (a app) onlyCall(t *testing.T) calls.Call {
	t.Helper()
	list, err := a.calls.ListCalls(context.Background(), "t1", calls.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestInboundCallLifecycle(t *testing.T) {
	a := newApp(t, nil)

	// 1. Vonage answers the inbound call with a connect NCCO.
	w := a.do(http.MethodGet, "/webhooks/vonage/answer?from=15559998888&to=15550001111&uuid=vonage-uuid-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ncco []telephony.NCCOAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ncco))
	require.Len(t, ncco, 1)
	require.Equal(t, "connect", ncco[0].Action)
	headers := ncco[0].Endpoint[0].Headers
	assert.Equal(t, "t1", headers["X-Tenant-ID"])
	callID := headers["X-Call-ID"]
	require.NotEmpty(t, callID)
	c := a.onlyCall(t)
	assert.Equal(t, calls.CallStatusConnecting, c.Status)
	assert.Equal(t, "15550001111", c.To)
	assert.Equal(t, "15559998888", c.From)

	// 2. The conversation starts and is bound to the call.
	w = a.do(http.MethodPost, "/webhooks/elevenlabs/conversation-started", `{"conversation_id":"C1"}`, map[string]string{"X-Call-ID": callID})
	require.Equal(t, http.StatusOK, w.Code)
	c = a.onlyCall(t)
	assert.Equal(t, calls.CallStatusConnected, c.Status)
	assert.Equal(t, "C1", c.ExternalConversationID)

	w = a.do(http.MethodPost, "/webhooks/elevenlabs/conversation-turn", `{"conversation_id":"C1","speaker":"user","message":"I need a haircut","turn_number":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 3. The agent books an appointment for the caller.
	date := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	w = a.do(http.MethodPost, "/webhooks/elevenlabs/tool-call",
		`{"conversation_id":"C1","tool_name":"book_appointment","parameters":{"customer_name":"Jo Doe","service_id":"s1","date":"`+date+`","time":"10:00"}}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var booked map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booked))
	assert.Equal(t, true, booked["success"], booked)

	// 4. The conversation ends and usage is reconciled.
	w = a.do(http.MethodPost, "/webhooks/elevenlabs/conversation-ended", `{"conversation_id":"C1","duration_seconds":125}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	c = a.onlyCall(t)
	assert.Equal(t, calls.CallStatusCompleted, c.Status)
	assert.Equal(t, 125, c.DurationSeconds)
	assert.Equal(t, int64(3*20_000), c.ConvAICostMicros)
	assert.Equal(t, int64(3*12_000), c.TelephonyCostMicros)
	assert.Equal(t, int64(96_000), c.TotalCostMicros)

	// The tenant read API sees the same call.
	owner := a.bearer(t, "owner")
	w = a.do(http.MethodGet, "/v1/calls/"+callID+"/transcript", "", owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "I need a haircut")

	w = a.do(http.MethodGet, "/v1/calls/"+callID+"/tools", "", owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "book_appointment")

	w = a.do(http.MethodGet, "/v1/usage", "", owner)
	require.Equal(t, http.StatusOK, w.Code)
	var u usage.MonthlyUsage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, 3, u.TotalMinutes)
}

func TestInboundCall_UnknownNumberNotInService(t *testing.T) {
	a := newApp(t, nil)
	w := a.do(http.MethodGet, "/webhooks/vonage/answer?from=15559998888&to=15550009999&uuid=u2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ncco []telephony.NCCOAction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ncco))
	require.NotEmpty(t, ncco)
	assert.Equal(t, "talk", ncco[0].Action)

	list, err := a.calls.ListCalls(context.Background(), "t1", calls.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTenantAPIRequiresAuth(t *testing.T) {
	a := newApp(t, nil)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/v1/calls", "", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/calls", "", a.bearer(t, "staff")).Code)
}

func TestChatRoutes_Unconfigured(t *testing.T) {
	a := newApp(t, nil)

	w := a.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	w = a.do(http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = a.do(http.MethodPost, "/api/chat", `{"message":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	assert.Equal(t, http.StatusOK, newApp(t, nil).do(http.MethodGet, "/healthz", "", nil).Code)

	down := newApp(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/healthz", "", nil).Code)
}
