package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPercentOf(t *testing.T) {
	cases := []struct {
		amount  int64
		percent float64
		want    int64
	}{
		{10000, 10, 1000},
		{10000, 0, 0},
		{0, 25, 0},
		{9999, 15, 1500},   // 1499.85 rounds up
		{333, 33.333, 111}, // 110.99889 rounds to 111
		{101, 50, 51},      // 50.5 rounds away from zero
		{5000, 100, 5000},
	}
	for _, tc := range cases {
		got := PercentOf(tc.amount, tc.percent)
		if got != tc.want {
			t.Errorf("PercentOf(%d, %v) = %d, want %d", tc.amount, tc.percent, got, tc.want)
		}
	}
}

func TestApplyRate(t *testing.T) {
	rate, err := ParseRate("0.15")
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}

	cases := []struct {
		amount int64
		want   int64
	}{
		{9000, 1350},
		{0, 0},
		{1, 0},    // 0.15 rounds down
		{10, 2},   // 1.5 rounds up
		{6667, 1000}, // 1000.05 rounds down
	}
	for _, tc := range cases {
		got := ApplyRate(tc.amount, rate)
		if got != tc.want {
			t.Errorf("ApplyRate(%d, 0.15) = %d, want %d", tc.amount, got, tc.want)
		}
	}
}

func TestApplyRateNoDrift(t *testing.T) {
	// 0.1 is not representable in binary floating point; a float-based
	// implementation drifts when the same rate is applied many times.
	rate, err := ParseRate("0.1")
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}
	total := int64(0)
	for i := 0; i < 10000; i++ {
		total += ApplyRate(10, rate)
	}
	if total != 10000 {
		t.Fatalf("expected 10000 after repeated application, got %d", total)
	}
	if !rate.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("rate mutated: %s", rate)
	}
}

func TestParseRateRejectsOutOfRange(t *testing.T) {
	for _, raw := range []string{"-0.01", "1", "1.5", "abc", ""} {
		if _, err := ParseRate(raw); err == nil {
			t.Errorf("ParseRate(%q) expected error", raw)
		}
	}
}

func TestPointsValue(t *testing.T) {
	if got := PointsValue(100, 1); got != 100 {
		t.Fatalf("100 points at 1c = %d, want 100", got)
	}
	if got := PointsValue(-5, 1); got != 0 {
		t.Fatalf("negative points should value 0, got %d", got)
	}
}

func TestEarnedPointsTruncates(t *testing.T) {
	cases := []struct {
		amount int64
		rate   int64
		want   int64
	}{
		{11350, 10, 1135},
		{11359, 10, 1135}, // truncated, never rounded up
		{99, 10, 9},
		{0, 10, 0},
		{5000, 0, 0},
	}
	for _, tc := range cases {
		got := EarnedPoints(tc.amount, tc.rate)
		if got != tc.want {
			t.Errorf("EarnedPoints(%d, %d) = %d, want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(-1, 0, 100); got != 0 {
		t.Fatalf("Clamp(-1,0,100) = %d", got)
	}
	if got := Clamp(250, 0, 100); got != 100 {
		t.Fatalf("Clamp(250,0,100) = %d", got)
	}
	if got := Clamp(42, 0, 100); got != 42 {
		t.Fatalf("Clamp(42,0,100) = %d", got)
	}
}
