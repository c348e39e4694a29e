package payout

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestReleaseAmount(t *testing.T) {
	tests := []struct {
		name       string
		principal  string
		feePercent string
		networkFee string
		want       string
	}{
		{"spec example", "10.00", "5.0", "0.02", "9.48"},
		{"zero fee", "10", "0", "0.02", "9.98"},
		{"zero network fee", "100", "10", "0", "90"},
		{"fee truncated per step", "0.000000001", "50", "0", "0.000000001"},
		{"network fee eats everything", "0.01", "5", "0.02", "0"},
		{"exactly zero", "1.00", "0", "1.00", "0"},
		{"nine digit precision", "1.123456789", "5", "0.000000001", "1.067283949"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReleaseAmount(dec(t, tt.principal), dec(t, tt.feePercent), dec(t, tt.networkFee))
			if !got.Equal(dec(t, tt.want)) {
				t.Errorf("ReleaseAmount(%s, %s, %s) = %s, want %s",
					tt.principal, tt.feePercent, tt.networkFee, got, tt.want)
			}
		})
	}
}

func TestRefundAmount(t *testing.T) {
	tests := []struct {
		principal  string
		networkFee string
		want       string
	}{
		{"10.00", "0.02", "9.98"},
		{"0.01", "0.02", "0"}, // floored at zero, recorded as skipped transfer
		{"0.02", "0.02", "0"},
		{"5", "0", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.principal+"-"+tt.networkFee, func(t *testing.T) {
			got := RefundAmount(dec(t, tt.principal), dec(t, tt.networkFee))
			if !got.Equal(dec(t, tt.want)) {
				t.Errorf("RefundAmount(%s, %s) = %s, want %s", tt.principal, tt.networkFee, got, tt.want)
			}
		})
	}
}

func TestPrincipal(t *testing.T) {
	tests := []struct {
		expected string
		received string
		want     string
	}{
		{"10", "10", "10"},
		{"10", "7.5", "7.5"},  // partial payment
		{"10", "12", "10"},    // over-payment capped
		{"10", "0", "0"},
	}

	for _, tt := range tests {
		got := Principal(dec(t, tt.expected), dec(t, tt.received))
		if !got.Equal(dec(t, tt.want)) {
			t.Errorf("Principal(%s, %s) = %s, want %s", tt.expected, tt.received, got, tt.want)
		}
	}
}

func TestNanoRoundTrip(t *testing.T) {
	d := dec(t, "1.234567891")
	if got := ToNano(d); got != 1234567891 {
		t.Errorf("ToNano = %d", got)
	}
	if got := FromNano(1234567891); !got.Equal(d) {
		t.Errorf("FromNano = %s", got)
	}

	// Anything past the 9th digit is truncated, not rounded.
	if got := ToNano(dec(t, "1.9999999999")); got != 1999999999 {
		t.Errorf("ToNano(1.9999999999) = %d, want 1999999999", got)
	}
}

func TestParseTON(t *testing.T) {
	if _, err := ParseTON(""); err == nil {
		t.Error("empty string should fail")
	}
	if _, err := ParseTON("abc"); err == nil {
		t.Error("garbage should fail")
	}
	d, err := ParseTON("10.5")
	if err != nil || !d.Equal(dec(t, "10.5")) {
		t.Errorf("ParseTON(10.5) = %s, %v", d, err)
	}
}
