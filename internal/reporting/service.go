package reporting

import (
	"context"
	"errors"

	"ai-receptionist/internal/calls"
	"ai-receptionist/internal/pricing"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
// Implementations must enforce tenant filtering.
type Repository interface {
	ListCalls(ctx context.Context, tenantID string, f calls.ListFilter) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.TenantID, calls.ListFilter{From: req.Range.From, To: req.Range.To, Limit: calls.MaxListLimit})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID, Range: req.Range, Truncated: len(rows) >= calls.MaxListLimit}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.TotalCostMicros += c.TotalCostMicros
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
			out.BilledMinutes += pricing.BillableMinutes(c.DurationSeconds)
		case calls.CallStatusAbandoned:
			out.AbandonedCalls++
		case calls.CallStatusConnecting, calls.CallStatusConnected:
			out.InProgressCalls++
		default:
			out.OtherCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	out.TotalCostUSD = pricing.FormatUSD(out.TotalCostMicros)
	return out, nil
}
