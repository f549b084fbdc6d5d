package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-receptionist/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	reconciled map[string]bool
	minutes    map[string]int
	pending    []Entry
	failFor    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{reconciled: map[string]bool{}, minutes: map[string]int{}}
}

func (f *fakeStore) ApplyUsage(_ context.Context, ch Charge) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch.CallID == f.failFor {
		return false, errors.New("db down")
	}
	if f.reconciled[ch.CallID] {
		return false, nil
	}
	f.reconciled[ch.CallID] = true
	f.minutes[ch.TenantID+"|"+ch.BillingMonth.Format("2006-01")] += ch.Cost.BillableMinutes
	return true, nil
}

func (f *fakeStore) ListUnreconciled(_ context.Context, limit int) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for _, e := range f.pending {
		if !f.reconciled[e.CallID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) MonthlyUsage(_ context.Context, tenantID string, month time.Time) (MonthlyUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := month.Format("2006-01")
	return MonthlyUsage{TenantID: tenantID, BillingMonth: key, TotalMinutes: f.minutes[tenantID+"|"+key]}, nil
}

func newReconciler(t *testing.T, store Store) *Reconciler {
	t.Helper()
	p, err := pricing.NewService(pricing.Rates{ConvAIPerMinuteMicros: 20_000, TelephonyPerMinuteMicros: 12_000})
	require.NoError(t, err)
	r := NewReconciler(store, p)
	r.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestReconcile_AppliesOnce(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(t, store)
	ctx := context.Background()
	e := Entry{CallID: "c1", TenantID: "t1", DurationSeconds: 125, EndedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	res, err := r.Reconcile(ctx, e)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 3, res.Charge.Cost.BillableMinutes)
	assert.Equal(t, int64(96_000), res.Charge.Cost.TotalMicros)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), res.Charge.BillingMonth)

	res, err = r.Reconcile(ctx, e)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	u, err := r.MonthlyUsage(ctx, "t1", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, u.TotalMinutes)
	assert.Equal(t, "2026-03", u.BillingMonth)
}

func TestReconcile_Accumulates(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(t, store)
	ctx := context.Background()
	ended := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := r.Reconcile(ctx, Entry{CallID: "c1", TenantID: "t1", DurationSeconds: 60, EndedAt: ended})
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, Entry{CallID: "c2", TenantID: "t1", DurationSeconds: 61, EndedAt: ended})
	require.NoError(t, err)

	u, err := r.MonthlyUsage(ctx, "t1", ended)
	require.NoError(t, err)
	assert.Equal(t, 3, u.TotalMinutes)
}

func TestReconcile_RejectsInvalidEntry(t *testing.T) {
	r := newReconciler(t, newFakeStore())
	_, err := r.Reconcile(context.Background(), Entry{CallID: "c1"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestReconcilePending_SkipsFailures(t *testing.T) {
	store := newFakeStore()
	store.failFor = "bad"
	store.pending = []Entry{
		{CallID: "c1", TenantID: "t1", DurationSeconds: 30},
		{CallID: "bad", TenantID: "t1", DurationSeconds: 30},
		{CallID: "c2", TenantID: "t1", DurationSeconds: 90},
	}
	r := newReconciler(t, store)

	n, err := r.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2026-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), m)

	_, err = ParseMonth("02/2026")
	assert.Error(t, err)
}
