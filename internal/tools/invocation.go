package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Name identifies a tool exposed to the voice agent.
type Name string

const (
	CheckAvailability Name = "check_availability"
	BookAppointment   Name = "book_appointment"
	GetCustomerInfo   Name = "get_customer_info"
	GetBusinessInfo   Name = "get_business_info"
	CancelAppointment Name = "cancel_appointment"
)

// Invocation is the closed set of decoded tool calls.
type Invocation interface {
	Tool() Name
}

type CheckAvailabilityArgs struct {
	Date      string     `json:"date"`
	ServiceID flexString `json:"service_id"`
}

type BookAppointmentArgs struct {
	CustomerPhone string     `json:"customer_phone"`
	CustomerName  string     `json:"customer_name"`
	Email         string     `json:"email"`
	ServiceID     flexString `json:"service_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Notes         string     `json:"notes"`
}

type GetCustomerInfoArgs struct {
	Phone string `json:"phone"`
}

type GetBusinessInfoArgs struct{}

type CancelAppointmentArgs struct {
	AppointmentID flexString `json:"appointment_id"`
}

// UnknownTool is returned for names outside the closed set.
type UnknownTool struct {
	Name string
}

func (CheckAvailabilityArgs) Tool() Name { return CheckAvailability }
func (BookAppointmentArgs) Tool() Name   { return BookAppointment }
func (GetCustomerInfoArgs) Tool() Name   { return GetCustomerInfo }
func (GetBusinessInfoArgs) Tool() Name   { return GetBusinessInfo }
func (CancelAppointmentArgs) Tool() Name { return CancelAppointment }
func (u UnknownTool) Tool() Name         { return Name(u.Name) }

// Decode maps a tool name and raw JSON parameters onto an Invocation.
// Unknown names decode to UnknownTool without error.
func Decode(name string, params json.RawMessage) (Invocation, error) {
	var inv Invocation
	switch Name(name) {
	case CheckAvailability:
		var a CheckAvailabilityArgs
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		inv = a
	case BookAppointment:
		var a BookAppointmentArgs
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		inv = a
	case GetCustomerInfo:
		var a GetCustomerInfoArgs
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		inv = a
	case GetBusinessInfo:
		inv = GetBusinessInfoArgs{}
	case CancelAppointment:
		var a CancelAppointmentArgs
		if err := decodeParams(params, &a); err != nil {
			return nil, err
		}
		inv = a
	default:
		inv = UnknownTool{Name: name}
	}
	return inv, nil
}

func decodeParams(params json.RawMessage, v any) error {
	p := bytes.TrimSpace(params)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// flexString accepts a JSON string or number; agents send ids either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
