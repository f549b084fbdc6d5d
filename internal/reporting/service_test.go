package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-receptionist/internal/calls"
)

type staticRepo struct {
	rows []calls.Call
	got  calls.ListFilter
}

func (r *staticRepo) ListCalls(_ context.Context, tenantID string, f calls.ListFilter) ([]calls.Call, error) {
	r.got = f
	var out []calls.Call
	for _, c := range r.rows {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestReporting_TenantIsolation(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := &staticRepo{rows: []calls.Call{
		{CallID: "c1", TenantID: "t1", Status: calls.CallStatusCompleted, DurationSeconds: 30, StartedAt: now},
		{CallID: "c2", TenantID: "t2", Status: calls.CallStatusCompleted, DurationSeconds: 50, StartedAt: now},
	}}
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{TenantID: "t1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
	if !repo.got.From.Equal(now.Add(-time.Hour)) || repo.got.Limit != calls.MaxListLimit {
		t.Fatalf("unexpected filter: %+v", repo.got)
	}
}

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	repo := &staticRepo{rows: []calls.Call{
		{CallID: "c1", TenantID: "t", Status: calls.CallStatusCompleted, DurationSeconds: 125, TotalCostMicros: 96_000, RecordingURL: "https://rec/1", StartedAt: now},
		{CallID: "c2", TenantID: "t", Status: calls.CallStatusCompleted, DurationSeconds: 60, TotalCostMicros: 32_000, StartedAt: now},
		{CallID: "c3", TenantID: "t", Status: calls.CallStatusAbandoned, StartedAt: now},
		{CallID: "c4", TenantID: "t", Status: calls.CallStatusConnected, StartedAt: now},
		{CallID: "c5", TenantID: "t", Status: "busy", StartedAt: now},
	}}
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{TenantID: "t", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 || out.CompletedCalls != 2 || out.AbandonedCalls != 1 || out.InProgressCalls != 1 || out.OtherCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalDurationSeconds != 185 || out.AverageDurationSeconds != 37 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.BilledMinutes != 4 {
		t.Fatalf("expected 4 billed minutes, got %d", out.BilledMinutes)
	}
	if out.RecordedCalls != 1 {
		t.Fatalf("expected 1 recorded call, got %d", out.RecordedCalls)
	}
	if out.TotalCostMicros != 128_000 || out.TotalCostUSD != "0.128000" {
		t.Fatalf("unexpected cost: %d %s", out.TotalCostMicros, out.TotalCostUSD)
	}
}

func TestReporting_InvalidRequest(t *testing.T) {
	svc := NewService(&staticRepo{})
	now := time.Now()
	cases := []CallsSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{TenantID: "t"},
		{TenantID: "t", Range: TimeRange{From: now, To: now}},
	}
	for _, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}
