package domain

import (
	"errors"
	"testing"
)

func TestParseAmount_AcceptedForms(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"1234", 123400},
		{"1234.56", 123456},
		{"1234,56", 123456},
		{"1.234,56", 123456},
		{"1,234.56", 123456},
		{"1.234", 123400},
		{"1,234", 123400},
		{"0.5", 50},
		{"0,05", 5},
		{"10.000,00", 1000000},
		{"10,000.00", 1000000},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.raw)
		if err != nil {
			t.Errorf("ParseAmount(%q) returned error: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestParseAmount_Rejected(t *testing.T) {
	cases := []string{"", "  ", "abc", "-5", "-1,00", "1.2345", "12,345.678.9", "1,2,3"}
	for _, raw := range cases {
		if _, err := ParseAmount(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q): expected ErrInvalidAmount, got %v", raw, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{123456, "1234.56"},
		{5, "0.05"},
		{0, "0.00"},
		{-4000, "-40.00"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.cents); got != tc.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
