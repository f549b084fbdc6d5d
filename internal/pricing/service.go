package pricing

import (
	"errors"
	"fmt"
)

var ErrInvalidRates = errors.New("pricing: rates must be non-negative")

// Service calculates call costs from configured per-minute rates.
//
// Contract:
// - Billing is per started minute; a 1 second call bills one minute.
// - Pure calculation, no I/O.
type Service struct {
	rates Rates
}

func NewService(rates Rates) (*Service, error) {
	if rates.ConvAIPerMinuteMicros < 0 || rates.TelephonyPerMinuteMicros < 0 {
		return nil, ErrInvalidRates
	}
	return &Service{rates: rates}, nil
}

func (s *Service) Rates() Rates { return s.rates }

// CallCost computes the cost breakdown for a call of durationSec seconds.
// Negative durations are treated as zero.
func (s *Service) CallCost(durationSec int) CallCost {
	if durationSec < 0 {
		durationSec = 0
	}
	minutes := BillableMinutes(durationSec)
	convai := s.rates.ConvAIPerMinuteMicros * int64(minutes)
	tel := s.rates.TelephonyPerMinuteMicros * int64(minutes)
	return CallCost{
		DurationSeconds: durationSec,
		BillableMinutes: minutes,
		ConvAIMicros:    convai,
		TelephonyMicros: tel,
		TotalMicros:     convai + tel,
	}
}

// BillableMinutes returns ceil(sec/60); zero or negative durations bill nothing.
func BillableMinutes(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}

// FormatUSD renders micro-dollars as a decimal dollar string with six places.
func FormatUSD(micros int64) string {
	sign := ""
	if micros < 0 {
		sign = "-"
		micros = -micros
	}
	return fmt.Sprintf("%s%d.%06d", sign, micros/1_000_000, micros%1_000_000)
}
