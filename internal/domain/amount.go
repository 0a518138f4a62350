package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("amount is not a valid monetary value")

// ParseAmount converts a locale-formatted amount string to cents. Both
// "1.234,56" (comma decimal) and "1,234.56" (dot decimal) are accepted, as are
// plain forms like "1234.56", "1234,56" and "1234". More than two fraction
// digits, negative values and non-numeric input are rejected.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidAmount)
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	var intPart, fracPart string
	switch {
	case lastComma == -1 && lastDot == -1:
		intPart = s
	case lastComma > lastDot:
		// Comma decimal separator; dots (if any) are thousands separators.
		intPart = strings.ReplaceAll(s[:lastComma], ".", "")
		fracPart = s[lastComma+1:]
		if strings.ContainsAny(intPart, ",") {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	default:
		// Dot decimal separator; commas (if any) are thousands separators.
		intPart = strings.ReplaceAll(s[:lastDot], ",", "")
		fracPart = s[lastDot+1:]
		if strings.ContainsAny(intPart, ".") {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		// A trailing group of exactly three digits after a single dot with
		// comma groups elsewhere would be ambiguous; treat three digits after
		// the separator as a decimal part only when explicit. Two or fewer
		// digits are always decimals.
	}

	if fracPart != "" && len(fracPart) > 2 {
		// "1.234" style thousands grouping without a decimal part.
		if len(fracPart) == 3 && !strings.ContainsAny(fracPart, ",.") {
			intPart += fracPart
			fracPart = ""
		} else {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	cents := units * 100
	if fracPart != "" {
		if len(fracPart) == 1 {
			fracPart += "0"
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		cents += frac
	}
	return cents, nil
}

// FormatAmount renders cents as a plain dot-decimal string, e.g. 123456 ->
// "1234.56". Used for event payloads and log lines, not for locale display.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
