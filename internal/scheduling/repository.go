package scheduling

import (
	"context"
	"errors"
	"time"
)

// ErrOverlap is returned by InsertAppointment when the interval collides with a
// scheduled appointment of the same tenant.
var ErrOverlap = errors.New("scheduling: overlapping appointment")

// Repository abstracts scheduling persistence. Lookups report misses as
// (zero, false, nil).
type Repository interface {
	GetProfile(ctx context.Context, tenantID string) (BusinessProfile, bool, error)
	ListHours(ctx context.Context, tenantID string) ([]BusinessHours, error)
	ListServices(ctx context.Context, tenantID string) ([]Service, error)
	GetService(ctx context.Context, tenantID, serviceID string) (Service, bool, error)

	UpsertCustomer(ctx context.Context, c Customer) (Customer, error)
	FindCustomerByPhone(ctx context.Context, tenantID, phone string) (Customer, bool, error)

	// ListScheduled returns scheduled appointments intersecting [from, to).
	ListScheduled(ctx context.Context, tenantID string, from, to time.Time) ([]Appointment, error)
	ListCustomerUpcoming(ctx context.Context, tenantID, customerID string, from time.Time) ([]Appointment, error)

	// InsertAppointment inserts atomically unless it overlaps (ErrOverlap).
	InsertAppointment(ctx context.Context, a Appointment) error
	CancelAppointment(ctx context.Context, tenantID, appointmentID string, at time.Time) (Appointment, bool, error)
}
