package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu sync.Mutex

	profiles     map[string]BusinessProfile
	hours        map[string][]BusinessHours
	services     map[string][]Service
	customers    map[string]Customer // tenant|phone
	appointments []Appointment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		profiles:  map[string]BusinessProfile{},
		hours:     map[string][]BusinessHours{},
		services:  map[string][]Service{},
		customers: map[string]Customer{},
	}
}

func (r *MemoryRepo) SetProfile(p BusinessProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.TenantID] = p
}

func (r *MemoryRepo) SetHours(tenantID string, hours ...BusinessHours) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range hours {
		hours[i].TenantID = tenantID
	}
	r.hours[tenantID] = hours
}

func (r *MemoryRepo) AddService(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[s.TenantID] = append(r.services[s.TenantID], s)
}

func (r *MemoryRepo) GetProfile(_ context.Context, tenantID string) (BusinessProfile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	return p, ok, nil
}

func (r *MemoryRepo) ListHours(_ context.Context, tenantID string) ([]BusinessHours, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BusinessHours(nil), r.hours[tenantID]...), nil
}

func (r *MemoryRepo) ListServices(_ context.Context, tenantID string) ([]Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Service(nil), r.services[tenantID]...), nil
}

func (r *MemoryRepo) GetService(_ context.Context, tenantID, serviceID string) (Service, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.services[tenantID] {
		if s.ServiceID == serviceID {
			return s, true, nil
		}
	}
	return Service{}, false, nil
}

func (r *MemoryRepo) UpsertCustomer(_ context.Context, c Customer) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.TenantID + "|" + c.Phone
	existing, ok := r.customers[key]
	if !ok {
		r.customers[key] = c
		return c, nil
	}
	if c.FirstName != "" {
		existing.FirstName = c.FirstName
	}
	if c.LastName != "" {
		existing.LastName = c.LastName
	}
	if c.Email != "" {
		existing.Email = c.Email
	}
	existing.UpdatedAt = c.UpdatedAt
	r.customers[key] = existing
	return existing, nil
}

func (r *MemoryRepo) FindCustomerByPhone(_ context.Context, tenantID, phone string) (Customer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[tenantID+"|"+phone]
	return c, ok, nil
}

func (r *MemoryRepo) ListScheduled(_ context.Context, tenantID string, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.TenantID == tenantID && a.Status == AppointmentScheduled && a.StartsAt.Before(to) && a.EndsAt.After(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *MemoryRepo) ListCustomerUpcoming(_ context.Context, tenantID, customerID string, from time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.TenantID == tenantID && a.CustomerID == customerID && a.Status == AppointmentScheduled && !a.StartsAt.Before(from) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *MemoryRepo) InsertAppointment(_ context.Context, a Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.appointments {
		if b.TenantID == a.TenantID && b.Status == AppointmentScheduled && b.StartsAt.Before(a.EndsAt) && b.EndsAt.After(a.StartsAt) {
			return ErrOverlap
		}
	}
	r.appointments = append(r.appointments, a)
	return nil
}

func (r *MemoryRepo) CancelAppointment(_ context.Context, tenantID, appointmentID string, at time.Time) (Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.appointments {
		a := &r.appointments[i]
		if a.TenantID == tenantID && a.AppointmentID == appointmentID {
			a.Status = AppointmentCancelled
			a.UpdatedAt = at
			return *a, true, nil
		}
	}
	return Appointment{}, false, nil
}
