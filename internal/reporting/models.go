package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: TenantID is required.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	AbandonedCalls  int `json:"abandoned_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	// OtherCalls holds provider statuses stored verbatim (failed, busy, ...).
	OtherCalls int `json:"other_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
	BilledMinutes          int `json:"billed_minutes"`

	RecordedCalls int `json:"recorded_calls"`

	TotalCostMicros int64  `json:"total_cost_micros"`
	TotalCostUSD    string `json:"total_cost_usd"`

	// Truncated is set when the range held more calls than one summary reads.
	Truncated bool `json:"truncated,omitempty"`
}
