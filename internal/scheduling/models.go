package scheduling

import "time"

// Customer is a tenant's caller, unique per (tenant_id, phone).
type Customer struct {
	CustomerID string    `json:"customer_id" db:"customer_id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Phone      string    `json:"phone" db:"phone"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Email      string    `json:"email,omitempty" db:"email"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Service is a bookable offering.
type Service struct {
	ServiceID       string `json:"service_id" db:"service_id"`
	TenantID        string `json:"tenant_id" db:"tenant_id"`
	Name            string `json:"name" db:"name"`
	Description     string `json:"description,omitempty" db:"description"`
	DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
	PriceMicros     int64  `json:"price_micros" db:"price_micros"`
	IsActive        bool   `json:"is_active" db:"is_active"`
}

type BusinessProfile struct {
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`
	Phone       string `json:"phone,omitempty" db:"phone"`
	Email       string `json:"email,omitempty" db:"email"`
	Address     string `json:"address,omitempty" db:"address"`
	// Timezone is an IANA name; booking dates and times are local to it.
	Timezone string `json:"timezone" db:"timezone"`
}

// BusinessHours covers one weekday. Opens/Closes are "15:04" local times.
type BusinessHours struct {
	TenantID string       `json:"-" db:"tenant_id"`
	Weekday  time.Weekday `json:"weekday" db:"weekday"`
	Opens    string       `json:"opens" db:"opens"`
	Closes   string       `json:"closes" db:"closes"`
	Closed   bool         `json:"closed" db:"is_closed"`
}

type Appointment struct {
	AppointmentID string    `json:"appointment_id" db:"appointment_id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	CustomerID    string    `json:"customer_id" db:"customer_id"`
	ServiceID     string    `json:"service_id,omitempty" db:"service_id"`
	StartsAt      time.Time `json:"starts_at" db:"starts_at"`
	EndsAt        time.Time `json:"ends_at" db:"ends_at"`
	Status        string    `json:"status" db:"status"`
	Notes         string    `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"
)

// Slot is an open interval in business-local "15:04" times.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Availability struct {
	Date            string `json:"date"`
	ServiceID       string `json:"service_id,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Closed          bool   `json:"closed"`
	Slots           []Slot `json:"available_slots"`
}

type CustomerInfo struct {
	Found    bool          `json:"found"`
	Customer *Customer     `json:"customer,omitempty"`
	Upcoming []Appointment `json:"upcoming_appointments,omitempty"`
}

type BusinessInfo struct {
	Profile  BusinessProfile `json:"business"`
	Hours    []BusinessHours `json:"hours"`
	Services []Service       `json:"services"`
}

// BookingRequest uses business-local Date "2006-01-02" and Time "15:04".
type BookingRequest struct {
	TenantID   string
	CustomerID string
	ServiceID  string
	Date       string
	Time       string
	Notes      string
}
