package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-receptionist/internal/pricing"
	"ai-receptionist/pkg/logger"
)

var ErrInvalidEntry = errors.New("usage: call id and tenant id are required")

// Reconciler turns completed calls into cost fields and monthly minutes.
type Reconciler struct {
	store   Store
	pricing *pricing.Service
	now     func() time.Time
}

func NewReconciler(store Store, p *pricing.Service) *Reconciler {
	return &Reconciler{store: store, pricing: p, now: time.Now}
}

// Reconcile prices one completed call and applies it at most once.
// The billing month follows the call's end time, falling back to now.
func (r *Reconciler) Reconcile(ctx context.Context, e Entry) (Result, error) {
	if e.CallID == "" || e.TenantID == "" {
		return Result{}, ErrInvalidEntry
	}
	now := r.now().UTC()
	ended := e.EndedAt
	if ended.IsZero() {
		ended = now
	}

	ch := Charge{
		CallID:       e.CallID,
		TenantID:     e.TenantID,
		BillingMonth: BillingMonth(ended),
		Cost:         r.pricing.CallCost(e.DurationSeconds),
		ReconciledAt: now,
	}
	applied, err := r.store.ApplyUsage(ctx, ch)
	if err != nil {
		return Result{}, fmt.Errorf("usage: apply %s: %w", e.CallID, err)
	}

	log := logger.WithCall(logger.From(ctx), e.TenantID, e.CallID, "")
	if applied {
		log.Info("call usage reconciled",
			"duration_seconds", ch.Cost.DurationSeconds,
			"minutes", ch.Cost.BillableMinutes,
			"total_cost_usd", pricing.FormatUSD(ch.Cost.TotalMicros),
		)
	} else {
		log.Info("call usage already reconciled")
	}
	return Result{Charge: ch, Applied: applied}, nil
}

// ReconcilePending retries completed calls whose reconciliation never landed.
// It returns how many were applied; per-call failures are logged and skipped.
func (r *Reconciler) ReconcilePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := r.store.ListUnreconciled(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		res, err := r.Reconcile(ctx, e)
		if err != nil {
			logger.From(ctx).Error("pending usage reconciliation failed", "call_id", e.CallID, "err", err)
			continue
		}
		if res.Applied {
			n++
		}
	}
	return n, nil
}

func (r *Reconciler) MonthlyUsage(ctx context.Context, tenantID string, month time.Time) (MonthlyUsage, error) {
	return r.store.MonthlyUsage(ctx, tenantID, BillingMonth(month))
}
