package pricing

// Amounts are integer micro-dollars (1 USD = 1_000_000) so per-minute rates such as
// 0.012 stay exact.

// Rates are per started minute.
type Rates struct {
	ConvAIPerMinuteMicros    int64
	TelephonyPerMinuteMicros int64
}

// CallCost is the cost breakdown of one completed call.
type CallCost struct {
	DurationSeconds int `json:"duration_seconds"`
	BillableMinutes int `json:"billable_minutes"`

	ConvAIMicros    int64 `json:"convai_cost_micros"`
	TelephonyMicros int64 `json:"telephony_cost_micros"`
	TotalMicros     int64 `json:"total_cost_micros"`
}
