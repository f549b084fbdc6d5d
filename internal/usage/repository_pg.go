package usage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ai-receptionist/pkg/utils"
)

// NOTE: This store assumes the following:
// - calls.usage_reconciled_at (nullable timestamptz) as the per-call check-and-set marker
// - usage_tracking with UNIQUE (tenant_id, billing_month)
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) ApplyUsage(ctx context.Context, ch Charge) (bool, error) {
	applied := false
	err := utils.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx *sql.Tx) error {
		ok, err := markReconciled(ctx, tx, ch)
		if err != nil || !ok {
			return err
		}
		if err := addMonthlyMinutes(ctx, tx, ch.TenantID, ch.BillingMonth, ch.Cost.BillableMinutes, ch.ReconciledAt); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func markReconciled(ctx context.Context, tx *sql.Tx, ch Charge) (bool, error) {
	const q = `
UPDATE calls
SET convai_cost_micros = $2,
    telephony_cost_micros = $3,
    total_cost_micros = $4,
    usage_reconciled_at = $5,
    updated_at = $5
WHERE call_id = $1 AND tenant_id = $6 AND usage_reconciled_at IS NULL
`
	n, err := utils.ExecAffected(ctx, tx, q,
		ch.CallID,
		ch.Cost.ConvAIMicros,
		ch.Cost.TelephonyMicros,
		ch.Cost.TotalMicros,
		ch.ReconciledAt,
		ch.TenantID,
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func addMonthlyMinutes(ctx context.Context, tx *sql.Tx, tenantID string, month time.Time, minutes int, now time.Time) error {
	const q = `
INSERT INTO usage_tracking (tenant_id, billing_month, total_minutes, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (tenant_id, billing_month)
DO UPDATE SET total_minutes = usage_tracking.total_minutes + EXCLUDED.total_minutes,
              updated_at = EXCLUDED.updated_at
`
	_, err := tx.ExecContext(ctx, q, tenantID, month, minutes, now)
	return err
}

func (s *PostgresStore) ListUnreconciled(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
SELECT call_id, tenant_id, duration_seconds, ended_at
FROM calls
WHERE status = 'completed' AND usage_reconciled_at IS NULL AND ended_at IS NOT NULL
ORDER BY ended_at
LIMIT $1
`
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CallID, &e.TenantID, &e.DurationSeconds, &e.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MonthlyUsage(ctx context.Context, tenantID string, month time.Time) (MonthlyUsage, error) {
	const q = `
SELECT total_minutes, updated_at
FROM usage_tracking
WHERE tenant_id = $1 AND billing_month = $2
`
	u := MonthlyUsage{TenantID: tenantID, BillingMonth: month.Format("2006-01")}
	err := s.DB.QueryRowContext(ctx, q, tenantID, month).Scan(&u.TotalMinutes, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return MonthlyUsage{}, err
	}
	return u, nil
}
