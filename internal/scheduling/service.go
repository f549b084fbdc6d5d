package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	defaultDurationMinutes = 30
	slotStep               = 30 * time.Minute
)

// Errors are worded for callers: they are returned verbatim to the voice agent.
var (
	ErrInvalidDate         = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidTime         = errors.New("time must be in HH:MM 24-hour format")
	ErrServiceNotFound     = errors.New("service not found")
	ErrClosed              = errors.New("the business is closed on that day")
	ErrOutsideHours        = errors.New("requested time is outside business hours")
	ErrInPast              = errors.New("requested time is in the past")
	ErrSlotTaken           = errors.New("that time is no longer available")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPhoneRequired       = errors.New("customer phone number is required")
	ErrCustomerRequired    = errors.New("customer is required")
	ErrBusinessNotFound    = errors.New("business profile not found")
)

// Scheduler implements the receptionist's business actions for one tenant at a time.
type Scheduler struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

func NewScheduler(repo Repository) *Scheduler {
	return &Scheduler{repo: repo, now: time.Now, newID: uuid.NewString}
}

func (s *Scheduler) location(ctx context.Context, tenantID string) (*time.Location, error) {
	p, ok, err := s.repo.GetProfile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !ok || p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

func (s *Scheduler) serviceDuration(ctx context.Context, tenantID, serviceID string) (Service, int, error) {
	if serviceID == "" {
		return Service{}, defaultDurationMinutes, nil
	}
	svc, ok, err := s.repo.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return Service{}, 0, err
	}
	if !ok || !svc.IsActive {
		return Service{}, 0, ErrServiceNotFound
	}
	d := svc.DurationMinutes
	if d <= 0 {
		d = defaultDurationMinutes
	}
	return svc, d, nil
}

// window returns the open interval for the given local day, or ok=false when closed.
func (s *Scheduler) window(ctx context.Context, tenantID string, day time.Time) (time.Time, time.Time, bool, error) {
	hours, err := s.repo.ListHours(ctx, tenantID)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	for _, h := range hours {
		if h.Weekday != day.Weekday() {
			continue
		}
		if h.Closed {
			return time.Time{}, time.Time{}, false, nil
		}
		open, err1 := atClock(day, h.Opens)
		closeAt, err2 := atClock(day, h.Closes)
		if err1 != nil || err2 != nil || !closeAt.After(open) {
			return time.Time{}, time.Time{}, false, fmt.Errorf("scheduling: bad business hours for %s", day.Weekday())
		}
		return open, closeAt, true, nil
	}
	return time.Time{}, time.Time{}, false, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(timeLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func parseDay(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// CheckAvailability lists open slots of the service's duration on date.
// Slots start on a 30 minute grid; past slots and overlaps are excluded.
func (s *Scheduler) CheckAvailability(ctx context.Context, tenantID, date, serviceID string) (Availability, error) {
	loc, err := s.location(ctx, tenantID)
	if err != nil {
		return Availability{}, err
	}
	day, err := parseDay(date, loc)
	if err != nil {
		return Availability{}, err
	}
	svc, minutes, err := s.serviceDuration(ctx, tenantID, serviceID)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{
		Date:            day.Format(dateLayout),
		ServiceID:       svc.ServiceID,
		ServiceName:     svc.Name,
		DurationMinutes: minutes,
		Slots:           []Slot{},
	}

	open, closeAt, ok, err := s.window(ctx, tenantID, day)
	if err != nil {
		return Availability{}, err
	}
	if !ok {
		out.Closed = true
		return out, nil
	}

	booked, err := s.repo.ListScheduled(ctx, tenantID, open, closeAt)
	if err != nil {
		return Availability{}, err
	}

	now := s.now()
	dur := time.Duration(minutes) * time.Minute
	for start := open; !start.Add(dur).After(closeAt); start = start.Add(slotStep) {
		end := start.Add(dur)
		if start.Before(now) || overlapsAny(start, end, booked) {
			continue
		}
		out.Slots = append(out.Slots, Slot{Start: start.Format(timeLayout), End: end.Format(timeLayout)})
	}
	return out, nil
}

func overlapsAny(start, end time.Time, appts []Appointment) bool {
	for _, a := range appts {
		if start.Before(a.EndsAt) && a.StartsAt.Before(end) {
			return true
		}
	}
	return false
}

// UpsertCustomer creates or updates the customer keyed by phone. Empty fields
// never overwrite stored values.
func (s *Scheduler) UpsertCustomer(ctx context.Context, tenantID, phone, firstName, lastName, email string) (Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Customer{}, ErrPhoneRequired
	}
	now := s.now().UTC()
	return s.repo.UpsertCustomer(ctx, Customer{
		CustomerID: s.newID(),
		TenantID:   tenantID,
		Phone:      phone,
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		Email:      strings.TrimSpace(email),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (s *Scheduler) GetCustomerInfo(ctx context.Context, tenantID, phone string) (CustomerInfo, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return CustomerInfo{}, ErrPhoneRequired
	}
	c, ok, err := s.repo.FindCustomerByPhone(ctx, tenantID, phone)
	if err != nil {
		return CustomerInfo{}, err
	}
	if !ok {
		return CustomerInfo{Found: false}, nil
	}
	upcoming, err := s.repo.ListCustomerUpcoming(ctx, tenantID, c.CustomerID, s.now())
	if err != nil {
		return CustomerInfo{}, err
	}
	return CustomerInfo{Found: true, Customer: &c, Upcoming: upcoming}, nil
}

// BookAppointment validates the request against business hours and existing
// bookings, then inserts a scheduled appointment.
func (s *Scheduler) BookAppointment(ctx context.Context, req BookingRequest) (Appointment, error) {
	if req.CustomerID == "" {
		return Appointment{}, ErrCustomerRequired
	}
	loc, err := s.location(ctx, req.TenantID)
	if err != nil {
		return Appointment{}, err
	}
	day, err := parseDay(req.Date, loc)
	if err != nil {
		return Appointment{}, err
	}
	start, err := atClock(day, req.Time)
	if err != nil {
		return Appointment{}, err
	}
	_, minutes, err := s.serviceDuration(ctx, req.TenantID, req.ServiceID)
	if err != nil {
		return Appointment{}, err
	}
	end := start.Add(time.Duration(minutes) * time.Minute)

	if start.Before(s.now()) {
		return Appointment{}, ErrInPast
	}
	open, closeAt, ok, err := s.window(ctx, req.TenantID, day)
	if err != nil {
		return Appointment{}, err
	}
	if !ok {
		return Appointment{}, ErrClosed
	}
	if start.Before(open) || end.After(closeAt) {
		return Appointment{}, ErrOutsideHours
	}

	now := s.now().UTC()
	a := Appointment{
		AppointmentID: s.newID(),
		TenantID:      req.TenantID,
		CustomerID:    req.CustomerID,
		ServiceID:     req.ServiceID,
		StartsAt:      start.UTC(),
		EndsAt:        end.UTC(),
		Status:        AppointmentScheduled,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertAppointment(ctx, a); err != nil {
		if errors.Is(err, ErrOverlap) {
			return Appointment{}, ErrSlotTaken
		}
		return Appointment{}, err
	}
	return a, nil
}

func (s *Scheduler) CancelAppointment(ctx context.Context, tenantID, appointmentID string) (Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return Appointment{}, ErrAppointmentNotFound
	}
	a, ok, err := s.repo.CancelAppointment(ctx, tenantID, appointmentID, s.now().UTC())
	if err != nil {
		return Appointment{}, err
	}
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (s *Scheduler) BusinessInfo(ctx context.Context, tenantID string) (BusinessInfo, error) {
	p, ok, err := s.repo.GetProfile(ctx, tenantID)
	if err != nil {
		return BusinessInfo{}, err
	}
	if !ok {
		return BusinessInfo{}, ErrBusinessNotFound
	}
	hours, err := s.repo.ListHours(ctx, tenantID)
	if err != nil {
		return BusinessInfo{}, err
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Weekday < hours[j].Weekday })

	services, err := s.repo.ListServices(ctx, tenantID)
	if err != nil {
		return BusinessInfo{}, err
	}
	active := make([]Service, 0, len(services))
	for _, svc := range services {
		if svc.IsActive {
			active = append(active, svc)
		}
	}
	return BusinessInfo{Profile: p, Hours: hours, Services: active}, nil
}

// IsUserError reports whether err is a validation or business-rule failure that
// is safe to read back to a caller.
func IsUserError(err error) bool {
	for _, e := range []error{
		ErrInvalidDate, ErrInvalidTime, ErrServiceNotFound, ErrClosed, ErrOutsideHours,
		ErrInPast, ErrSlotTaken, ErrAppointmentNotFound, ErrPhoneRequired,
		ErrCustomerRequired, ErrBusinessNotFound,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
