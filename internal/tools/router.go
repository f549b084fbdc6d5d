package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/scheduling"
	"ai-receptionist/pkg/logger"
)

var ErrTenantContextNotFound = errors.New("tools: tenant context not found")

// Payload is the structured tool result returned to the agent as the response body.
type Payload map[string]any

// Failed reports whether the payload carries an error.
func (p Payload) Failed() bool {
	if v, ok := p["error"]; ok && v != nil && v != "" {
		return true
	}
	return false
}

func success(fields Payload) Payload {
	out := Payload{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func failure(msg string) Payload {
	return Payload{"success": false, "error": msg}
}

// CallLookup resolves the call bound to a conversation.
type CallLookup interface {
	FindByConversation(ctx context.Context, conversationID string) (calls.CallRef, bool, error)
}

// Actions are the business operations tools delegate to.
type Actions interface {
	CheckAvailability(ctx context.Context, tenantID, date, serviceID string) (scheduling.Availability, error)
	UpsertCustomer(ctx context.Context, tenantID, phone, firstName, lastName, email string) (scheduling.Customer, error)
	GetCustomerInfo(ctx context.Context, tenantID, phone string) (scheduling.CustomerInfo, error)
	BookAppointment(ctx context.Context, req scheduling.BookingRequest) (scheduling.Appointment, error)
	CancelAppointment(ctx context.Context, tenantID, appointmentID string) (scheduling.Appointment, error)
	BusinessInfo(ctx context.Context, tenantID string) (scheduling.BusinessInfo, error)
}

// Request is one tool call from the conversational agent. The header ids are the
// correlation headers set on the voice bridge, used when the conversation is unbound.
type Request struct {
	ConversationID string
	Tool           string
	Parameters     json.RawMessage
	HeaderTenantID string
	HeaderCallID   string
}

type Result struct {
	TenantID string
	CallID   string
	Payload  Payload
}

// Router resolves the tenant of a tool call, dispatches it, and records it.
type Router struct {
	calls   CallLookup
	actions Actions
	log     *ExecutionLog
}

func NewRouter(lookup CallLookup, actions Actions, log *ExecutionLog) *Router {
	return &Router{calls: lookup, actions: actions, log: log}
}

type scope struct {
	tenantID   string
	callID     string
	callerFrom string
}

func (r *Router) resolve(ctx context.Context, req Request) (scope, error) {
	if req.ConversationID != "" {
		ref, ok, err := r.calls.FindByConversation(ctx, req.ConversationID)
		if err != nil {
			return scope{}, fmt.Errorf("tools: resolve conversation: %w", err)
		}
		if ok {
			return scope{tenantID: ref.TenantID, callID: ref.CallID, callerFrom: ref.FromNumber}, nil
		}
	}
	if tid := strings.TrimSpace(req.HeaderTenantID); tid != "" {
		return scope{tenantID: tid, callID: strings.TrimSpace(req.HeaderCallID)}, nil
	}
	return scope{}, ErrTenantContextNotFound
}

// Dispatch executes the tool. Business failures are returned as failure payloads,
// not errors; the only errors are ErrTenantContextNotFound and lookup failures.
func (r *Router) Dispatch(ctx context.Context, req Request) (Result, error) {
	sc, err := r.resolve(ctx, req)
	if err != nil {
		if errors.Is(err, ErrTenantContextNotFound) {
			logger.From(ctx).Warn("no tenant for tool call", "conversation_id", req.ConversationID, "tool", req.Tool)
		}
		return Result{}, err
	}
	log := logger.WithCall(logger.From(ctx), sc.tenantID, sc.callID, req.ConversationID)
	log.Info("tool call", "tool", req.Tool)

	var payload Payload
	inv, err := Decode(req.Tool, req.Parameters)
	if err != nil {
		payload = failure(err.Error())
	} else {
		payload = r.execute(logger.With(ctx, log), sc, inv)
	}

	if err := r.log.Record(ctx, sc.tenantID, sc.callID, Name(req.Tool), req.Parameters, payload); err != nil {
		log.Error("tool execution not recorded", "tool", req.Tool, "err", err)
	}
	return Result{TenantID: sc.tenantID, CallID: sc.callID, Payload: payload}, nil
}

func (r *Router) execute(ctx context.Context, sc scope, inv Invocation) Payload {
	switch a := inv.(type) {
	case CheckAvailabilityArgs:
		av, err := r.actions.CheckAvailability(ctx, sc.tenantID, a.Date, string(a.ServiceID))
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		return success(Payload{
			"date":             av.Date,
			"service_id":       av.ServiceID,
			"service_name":     av.ServiceName,
			"duration_minutes": av.DurationMinutes,
			"closed":           av.Closed,
			"available_slots":  av.Slots,
		})

	case BookAppointmentArgs:
		phone := a.CustomerPhone
		if phone == "" {
			phone = sc.callerFrom
		}
		first, last := splitName(a.CustomerName)
		cust, err := r.actions.UpsertCustomer(ctx, sc.tenantID, phone, first, last, a.Email)
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		appt, err := r.actions.BookAppointment(ctx, scheduling.BookingRequest{
			TenantID:   sc.tenantID,
			CustomerID: cust.CustomerID,
			ServiceID:  string(a.ServiceID),
			Date:       a.Date,
			Time:       a.Time,
			Notes:      a.Notes,
		})
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		return success(Payload{
			"appointment_id": appt.AppointmentID,
			"customer_id":    cust.CustomerID,
			"service_id":     appt.ServiceID,
			"date":           a.Date,
			"time":           a.Time,
			"starts_at":      appt.StartsAt,
			"status":         appt.Status,
			"message":        fmt.Sprintf("Appointment booked for %s at %s", a.Date, a.Time),
		})

	case GetCustomerInfoArgs:
		phone := a.Phone
		if phone == "" {
			phone = sc.callerFrom
		}
		info, err := r.actions.GetCustomerInfo(ctx, sc.tenantID, phone)
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		out := Payload{"found": info.Found}
		if info.Found {
			out["customer"] = info.Customer
			out["upcoming_appointments"] = info.Upcoming
		}
		return success(out)

	case GetBusinessInfoArgs:
		info, err := r.actions.BusinessInfo(ctx, sc.tenantID)
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		return success(Payload{
			"business": info.Profile,
			"hours":    info.Hours,
			"services": info.Services,
		})

	case CancelAppointmentArgs:
		appt, err := r.actions.CancelAppointment(ctx, sc.tenantID, string(a.AppointmentID))
		if err != nil {
			return r.fail(ctx, inv, err)
		}
		return success(Payload{
			"appointment_id": appt.AppointmentID,
			"status":         appt.Status,
			"message":        "Appointment cancelled",
		})

	case UnknownTool:
		logger.From(ctx).Warn("unknown tool", "tool", a.Name)
		return failure("Unknown tool: " + a.Name)

	default:
		return failure(fmt.Sprintf("Unknown tool: %s", inv.Tool()))
	}
}

// fail converts an action error to a failure payload. Internal errors are logged
// and replaced by a generic message.
func (r *Router) fail(ctx context.Context, inv Invocation, err error) Payload {
	if scheduling.IsUserError(err) {
		return failure(err.Error())
	}
	logger.From(ctx).Error("tool execution failed", "tool", inv.Tool(), "err", err)
	return failure("Tool execution failed")
}

// splitName splits on the first space: "Mary Ann Smith" -> "Mary", "Ann Smith".
func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	first, last, _ := strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}
