package scheduling

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-10 is a Tuesday.
var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	repo.SetProfile(BusinessProfile{TenantID: "t1", Name: "Bright Smiles Dental", Timezone: "UTC"})
	repo.SetHours("t1",
		BusinessHours{Weekday: time.Tuesday, Opens: "09:00", Closes: "12:00"},
		BusinessHours{Weekday: time.Wednesday, Closed: true},
	)
	repo.AddService(Service{ServiceID: "s1", TenantID: "t1", Name: "Cleaning", DurationMinutes: 60, IsActive: true})
	repo.AddService(Service{ServiceID: "s-old", TenantID: "t1", Name: "Retired", DurationMinutes: 30, IsActive: false})

	s := NewScheduler(repo)
	s.now = func() time.Time { return testNow }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s, repo
}

func slotStarts(a Availability) []string {
	out := []string{}
	for _, s := range a.Slots {
		out = append(out, s.Start)
	}
	return out
}

func TestCheckAvailability(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	a, err := s.CheckAvailability(ctx, "t1", "2026-03-10", "s1")
	require.NoError(t, err)
	assert.False(t, a.Closed)
	assert.Equal(t, 60, a.DurationMinutes)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00"}, slotStarts(a))
	assert.Equal(t, "12:00", a.Slots[len(a.Slots)-1].End)

	closed, err := s.CheckAvailability(ctx, "t1", "2026-03-11", "s1")
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	assert.Empty(t, closed.Slots)

	// No hours configured for Thursday.
	thu, err := s.CheckAvailability(ctx, "t1", "2026-03-12", "")
	require.NoError(t, err)
	assert.True(t, thu.Closed)
}

func TestCheckAvailability_ExcludesPastAndBooked(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.BookAppointment(ctx, BookingRequest{TenantID: "t1", CustomerID: "c1", ServiceID: "s1", Date: "2026-03-10", Time: "10:00"})
	require.NoError(t, err)

	a, err := s.CheckAvailability(ctx, "t1", "2026-03-10", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00"}, slotStarts(a))

	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC) }
	a, err = s.CheckAvailability(ctx, "t1", "2026-03-10", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, slotStarts(a))
}

func TestCheckAvailability_Errors(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.CheckAvailability(ctx, "t1", "03/10/2026", "s1")
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = s.CheckAvailability(ctx, "t1", "2026-03-10", "missing")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	_, err = s.CheckAvailability(ctx, "t1", "2026-03-10", "s-old")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestBookAppointment_Validation(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()
	base := BookingRequest{TenantID: "t1", CustomerID: "c1", ServiceID: "s1", Date: "2026-03-10", Time: "10:00"}

	a, err := s.BookAppointment(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, AppointmentScheduled, a.Status)
	assert.Equal(t, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), a.EndsAt)

	cases := []struct {
		name string
		mod  func(*BookingRequest)
		want error
	}{
		{"overlap", func(r *BookingRequest) { r.Time = "10:30" }, ErrSlotTaken},
		{"past close", func(r *BookingRequest) { r.Time = "11:30" }, ErrOutsideHours},
		{"before open", func(r *BookingRequest) { r.Time = "08:30" }, ErrOutsideHours},
		{"closed day", func(r *BookingRequest) { r.Date = "2026-03-11" }, ErrClosed},
		{"past", func(r *BookingRequest) { r.Date = "2026-03-03" }, ErrInPast},
		{"bad date", func(r *BookingRequest) { r.Date = "tomorrow" }, ErrInvalidDate},
		{"bad time", func(r *BookingRequest) { r.Time = "9am" }, ErrInvalidTime},
		{"no customer", func(r *BookingRequest) { r.CustomerID = "" }, ErrCustomerRequired},
		{"unknown service", func(r *BookingRequest) { r.ServiceID = "nope" }, ErrServiceNotFound},
	}
	for _, tc := range cases {
		req := base
		tc.mod(&req)
		_, err := s.BookAppointment(ctx, req)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestCancelAppointment_FreesSlot(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	a, err := s.BookAppointment(ctx, BookingRequest{TenantID: "t1", CustomerID: "c1", ServiceID: "s1", Date: "2026-03-10", Time: "09:00"})
	require.NoError(t, err)

	cancelled, err := s.CancelAppointment(ctx, "t1", a.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, cancelled.Status)

	_, err = s.BookAppointment(ctx, BookingRequest{TenantID: "t1", CustomerID: "c2", ServiceID: "s1", Date: "2026-03-10", Time: "09:00"})
	require.NoError(t, err)

	_, err = s.CancelAppointment(ctx, "t1", "missing")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = s.CancelAppointment(ctx, "other-tenant", a.AppointmentID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCustomers(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	c, err := s.UpsertCustomer(ctx, "t1", "+15551234567", "Jane", "Doe", "")
	require.NoError(t, err)

	again, err := s.UpsertCustomer(ctx, "t1", "+15551234567", "", "", "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, c.CustomerID, again.CustomerID)
	assert.Equal(t, "Jane", again.FirstName)
	assert.Equal(t, "jane@example.com", again.Email)

	_, err = s.BookAppointment(ctx, BookingRequest{TenantID: "t1", CustomerID: c.CustomerID, ServiceID: "s1", Date: "2026-03-10", Time: "09:00"})
	require.NoError(t, err)

	info, err := s.GetCustomerInfo(ctx, "t1", "+15551234567")
	require.NoError(t, err)
	assert.True(t, info.Found)
	assert.Len(t, info.Upcoming, 1)

	info, err = s.GetCustomerInfo(ctx, "t1", "+15550000000")
	require.NoError(t, err)
	assert.False(t, info.Found)

	_, err = s.UpsertCustomer(ctx, "t1", " ", "X", "", "")
	assert.ErrorIs(t, err, ErrPhoneRequired)
}

func TestBusinessInfo(t *testing.T) {
	s, _ := newTestScheduler(t)
	info, err := s.BusinessInfo(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Bright Smiles Dental", info.Profile.Name)
	assert.Len(t, info.Hours, 2)
	require.Len(t, info.Services, 1)
	assert.Equal(t, "s1", info.Services[0].ServiceID)

	_, err = s.BusinessInfo(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}
