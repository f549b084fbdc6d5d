package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ai-receptionist/internal/auth"
	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/rbac"
	"ai-receptionist/internal/reporting"
	"ai-receptionist/internal/usage"
	"ai-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallReader is the tenant-scoped read side of the call registry.
type CallReader interface {
	GetCall(ctx context.Context, tenantID, callID string) (calls.Call, bool, error)
	ListCalls(ctx context.Context, tenantID string, f calls.ListFilter) ([]calls.Call, error)
	ListTurns(ctx context.Context, tenantID, callID string) ([]calls.ConversationTurn, error)
	ListToolExecutions(ctx context.Context, tenantID, callID string) ([]calls.ToolExecution, error)
}

type UsageReader interface {
	MonthlyUsage(ctx context.Context, tenantID string, month time.Time) (usage.MonthlyUsage, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls   CallReader
	Reports *reporting.Service
	Usage   UsageReader
	Now     func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func tenantOf(c *gin.Context) (string, bool) {
	tid, err := auth.TenantID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tenant context required"})
		return "", false
	}
	return tid, true
}

func (h Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	tid, _ := auth.TenantID(ctx)
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	c.JSON(http.StatusOK, gin.H{"tenant_id": tid, "user_id": uid, "role": role})
}

// parseRange reads optional RFC3339 from/to query parameters.
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	var from, to time.Time
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.key + " must be RFC3339"})
			return time.Time{}, time.Time{}, false
		}
		*p.dst = t.UTC()
	}
	return from, to, true
}

// ListCalls serves GET /v1/calls?from&to&limit, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	tid, ok := tenantOf(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	rows, err := h.Calls.ListCalls(c.Request.Context(), tid, calls.ListFilter{From: from, To: to, Limit: limit})
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "tenant_id", tid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if rows == nil {
		rows = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// loadCall resolves :call_id within the caller's tenant; other tenants' calls are 404.
func (h Handlers) loadCall(c *gin.Context) (calls.Call, bool) {
	tid, ok := tenantOf(c)
	if !ok {
		return calls.Call{}, false
	}
	call, found, err := h.Calls.GetCall(c.Request.Context(), tid, c.Param("call_id"))
	if err != nil {
		logger.FromGin(c).Error("get call failed", "tenant_id", tid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return calls.Call{}, false
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return calls.Call{}, false
	}
	return call, true
}

func (h Handlers) GetCall(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) Transcript(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}
	turns, err := h.Calls.ListTurns(c.Request.Context(), call.TenantID, call.CallID)
	if err != nil {
		logger.FromGin(c).Error("list turns failed", "call_id", call.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}
	if turns == nil {
		turns = []calls.ConversationTurn{}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": call.CallID, "turns": turns})
}

func (h Handlers) ToolExecutions(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}
	execs, err := h.Calls.ListToolExecutions(c.Request.Context(), call.TenantID, call.CallID)
	if err != nil {
		logger.FromGin(c).Error("list tool executions failed", "call_id", call.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tool execution lookup failed"})
		return
	}
	if execs == nil {
		execs = []calls.ToolExecution{}
	}
	c.JSON(http.StatusOK, gin.H{"call_id": call.CallID, "tool_executions": execs})
}

// CallsReport serves GET /v1/reports/calls; the range defaults to the last 30 days.
func (h Handlers) CallsReport(c *gin.Context) {
	tid, ok := tenantOf(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	if to.IsZero() {
		to = h.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		TenantID: tid,
		Range:    reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}
		logger.FromGin(c).Error("calls report failed", "tenant_id", tid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// MonthlyUsage serves GET /v1/usage?month=YYYY-MM; the month defaults to the current one.
func (h Handlers) MonthlyUsage(c *gin.Context) {
	tid, ok := tenantOf(c)
	if !ok {
		return
	}
	month := usage.BillingMonth(h.now())
	if v := c.Query("month"); v != "" {
		m, err := usage.ParseMonth(v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
			return
		}
		month = m
	}
	u, err := h.Usage.MonthlyUsage(c.Request.Context(), tid, month)
	if err != nil {
		logger.FromGin(c).Error("usage lookup failed", "tenant_id", tid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "usage lookup failed"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(r *auth.Resolver, roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{auth.RequireTenant(r), rbac.RequireAnyRole(roles...)}
}
