package usage

import (
	"time"

	"ai-receptionist/internal/pricing"
)

// Entry is a completed call awaiting usage reconciliation.
type Entry struct {
	CallID          string
	TenantID        string
	DurationSeconds int
	EndedAt         time.Time
}

// Charge is what one reconciliation writes: cost fields on the call and
// an additive minute increment for the tenant's billing month.
type Charge struct {
	CallID       string
	TenantID     string
	BillingMonth time.Time
	Cost         pricing.CallCost
	ReconciledAt time.Time
}

// Result reports the outcome of Reconcile. Applied is false when the call
// was already reconciled (duplicate delivery) or no longer eligible.
type Result struct {
	Charge  Charge
	Applied bool
}

// MonthlyUsage is the tenant-facing aggregate for one billing month.
type MonthlyUsage struct {
	TenantID     string    `json:"tenant_id"`
	BillingMonth string    `json:"billing_month"`
	TotalMinutes int       `json:"total_minutes"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// BillingMonth returns the first instant of t's month in UTC.
func BillingMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth parses "2006-01" into a billing month.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, err
	}
	return BillingMonth(t), nil
}
