package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ai-receptionist/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes:
// - customers UNIQUE (tenant_id, phone)
// - business_hours UNIQUE (tenant_id, weekday), opens/closes stored as 'HH:MM' text
// - appointments EXCLUDE USING gist (tenant_id WITH =, tstzrange(starts_at, ends_at) WITH &&)
//   WHERE (status = 'scheduled'), which needs the btree_gist extension
type PostgresRepository struct {
	DB *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{DB: db}
}

func (r *PostgresRepository) GetProfile(ctx context.Context, tenantID string) (BusinessProfile, bool, error) {
	const q = `
SELECT tenant_id, name, COALESCE(description, ''), COALESCE(phone, ''), COALESCE(email, ''),
       COALESCE(address, ''), COALESCE(timezone, 'UTC')
FROM business_profiles
WHERE tenant_id = $1
`
	var p BusinessProfile
	err := r.DB.QueryRowContext(ctx, q, tenantID).Scan(
		&p.TenantID, &p.Name, &p.Description, &p.Phone, &p.Email, &p.Address, &p.Timezone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BusinessProfile{}, false, nil
	}
	if err != nil {
		return BusinessProfile{}, false, err
	}
	return p, true, nil
}

func (r *PostgresRepository) ListHours(ctx context.Context, tenantID string) ([]BusinessHours, error) {
	const q = `
SELECT tenant_id, weekday, opens, closes, is_closed
FROM business_hours
WHERE tenant_id = $1
ORDER BY weekday
`
	rows, err := r.DB.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BusinessHours
	for rows.Next() {
		var (
			h       BusinessHours
			weekday int
		)
		if err := rows.Scan(&h.TenantID, &weekday, &h.Opens, &h.Closes, &h.Closed); err != nil {
			return nil, err
		}
		h.Weekday = time.Weekday(weekday)
		out = append(out, h)
	}
	return out, rows.Err()
}

const serviceColumns = `service_id, tenant_id, name, COALESCE(description, ''), duration_minutes, price_micros, is_active`

func scanService(s interface{ Scan(...any) error }) (Service, error) {
	var svc Service
	err := s.Scan(&svc.ServiceID, &svc.TenantID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.PriceMicros, &svc.IsActive)
	return svc, err
}

func (r *PostgresRepository) ListServices(ctx context.Context, tenantID string) ([]Service, error) {
	q := `SELECT ` + serviceColumns + ` FROM services WHERE tenant_id = $1 ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetService(ctx context.Context, tenantID, serviceID string) (Service, bool, error) {
	q := `SELECT ` + serviceColumns + ` FROM services WHERE tenant_id = $1 AND service_id = $2`
	svc, err := scanService(r.DB.QueryRowContext(ctx, q, tenantID, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, false, nil
	}
	if err != nil {
		return Service{}, false, err
	}
	return svc, true, nil
}

func (r *PostgresRepository) UpsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	const q = `
INSERT INTO customers (customer_id, tenant_id, phone, first_name, last_name, email, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (tenant_id, phone)
DO UPDATE SET first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), customers.first_name),
              last_name = COALESCE(NULLIF(EXCLUDED.last_name, ''), customers.last_name),
              email = COALESCE(EXCLUDED.email, customers.email),
              updated_at = EXCLUDED.updated_at
RETURNING customer_id, tenant_id, phone, first_name, last_name, COALESCE(email, ''), created_at, updated_at
`
	var out Customer
	err := r.DB.QueryRowContext(ctx, q,
		c.CustomerID, c.TenantID, c.Phone, c.FirstName, c.LastName, utils.NullString(c.Email), c.CreatedAt,
	).Scan(&out.CustomerID, &out.TenantID, &out.Phone, &out.FirstName, &out.LastName, &out.Email, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	return out, nil
}

func (r *PostgresRepository) FindCustomerByPhone(ctx context.Context, tenantID, phone string) (Customer, bool, error) {
	const q = `
SELECT customer_id, tenant_id, phone, first_name, last_name, COALESCE(email, ''), created_at, updated_at
FROM customers
WHERE tenant_id = $1 AND phone = $2
`
	var c Customer
	err := r.DB.QueryRowContext(ctx, q, tenantID, phone).Scan(
		&c.CustomerID, &c.TenantID, &c.Phone, &c.FirstName, &c.LastName, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, false, nil
	}
	if err != nil {
		return Customer{}, false, err
	}
	return c, true, nil
}

const appointmentColumns = `appointment_id, tenant_id, customer_id, COALESCE(service_id::text, ''), starts_at, ends_at, status, COALESCE(notes, ''), created_at, updated_at`

func (r *PostgresRepository) queryAppointments(ctx context.Context, q string, args ...any) ([]Appointment, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.AppointmentID, &a.TenantID, &a.CustomerID, &a.ServiceID, &a.StartsAt, &a.EndsAt, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListScheduled(ctx context.Context, tenantID string, from, to time.Time) ([]Appointment, error) {
	q := `SELECT ` + appointmentColumns + `
FROM appointments
WHERE tenant_id = $1 AND status = 'scheduled' AND starts_at < $3 AND ends_at > $2
ORDER BY starts_at`
	return r.queryAppointments(ctx, q, tenantID, from, to)
}

func (r *PostgresRepository) ListCustomerUpcoming(ctx context.Context, tenantID, customerID string, from time.Time) ([]Appointment, error) {
	q := `SELECT ` + appointmentColumns + `
FROM appointments
WHERE tenant_id = $1 AND customer_id = $2 AND status = 'scheduled' AND starts_at >= $3
ORDER BY starts_at
LIMIT 20`
	return r.queryAppointments(ctx, q, tenantID, customerID, from)
}

// sqlStateExclusionViolation is raised by the appointments overlap constraint.
const sqlStateExclusionViolation = "23P01"

// InsertAppointment skips the insert when a committed booking overlaps. Two
// concurrent bookings can both pass that check; the exclusion constraint
// rejects the second and it maps to ErrOverlap as well.
func (r *PostgresRepository) InsertAppointment(ctx context.Context, a Appointment) error {
	const q = `
INSERT INTO appointments (
  appointment_id, tenant_id, customer_id, service_id, starts_at, ends_at, status, notes, created_at, updated_at
)
SELECT $1,$2,$3,$4,$5,$6,$7,$8,$9,$9
WHERE NOT EXISTS (
  SELECT 1 FROM appointments
  WHERE tenant_id = $2 AND status = 'scheduled' AND starts_at < $6 AND ends_at > $5
)
`
	n, err := utils.ExecAffected(ctx, r.DB, q,
		a.AppointmentID, a.TenantID, a.CustomerID, utils.NullString(a.ServiceID),
		a.StartsAt, a.EndsAt, a.Status, utils.NullString(a.Notes), a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation {
		return ErrOverlap
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOverlap
	}
	return nil
}

func (r *PostgresRepository) CancelAppointment(ctx context.Context, tenantID, appointmentID string, at time.Time) (Appointment, bool, error) {
	q := `
UPDATE appointments SET status = 'cancelled', updated_at = $3
WHERE tenant_id = $1 AND appointment_id = $2
RETURNING ` + appointmentColumns
	out, err := r.queryAppointments(ctx, q, tenantID, appointmentID, at)
	if err != nil {
		return Appointment{}, false, err
	}
	if len(out) == 0 {
		return Appointment{}, false, nil
	}
	return out[0], true, nil
}
