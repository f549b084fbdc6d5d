package pricing

import "testing"

func TestBillableMinutes(t *testing.T) {
	cases := map[int]int{-5: 0, 0: 0, 1: 1, 59: 1, 60: 1, 61: 2, 125: 3, 3600: 60}
	for in, want := range cases {
		if got := BillableMinutes(in); got != want {
			t.Fatalf("BillableMinutes(%d): expected %d, got %d", in, want, got)
		}
	}
}

func TestCallCost(t *testing.T) {
	s, err := NewService(Rates{ConvAIPerMinuteMicros: 20_000, TelephonyPerMinuteMicros: 12_000})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	c := s.CallCost(125)
	if c.BillableMinutes != 3 {
		t.Fatalf("expected 3 minutes, got %d", c.BillableMinutes)
	}
	if c.ConvAIMicros != 60_000 || c.TelephonyMicros != 36_000 || c.TotalMicros != 96_000 {
		t.Fatalf("unexpected cost: %+v", c)
	}

	if z := s.CallCost(0); z.TotalMicros != 0 || z.BillableMinutes != 0 {
		t.Fatalf("expected zero cost, got %+v", z)
	}
}

func TestNewService_RejectsNegativeRates(t *testing.T) {
	if _, err := NewService(Rates{ConvAIPerMinuteMicros: -1}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFormatUSD(t *testing.T) {
	if got := FormatUSD(96_000); got != "0.096000" {
		t.Fatalf("unexpected %q", got)
	}
	if got := FormatUSD(1_500_000); got != "1.500000" {
		t.Fatalf("unexpected %q", got)
	}
}
