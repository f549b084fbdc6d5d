package usage

import (
	"context"
	"time"
)

// Store persists reconciliation results.
//
// Contract for ApplyUsage:
// - Cost fields, the reconciled marker and the monthly increment are written atomically.
// - It is a no-op returning false when the call is already reconciled, so a duplicate
//   "conversation ended" never double-counts minutes.
// - total_minutes is only ever incremented.
type Store interface {
	ApplyUsage(ctx context.Context, ch Charge) (bool, error)
	ListUnreconciled(ctx context.Context, limit int) ([]Entry, error)
	MonthlyUsage(ctx context.Context, tenantID string, month time.Time) (MonthlyUsage, error)
}
