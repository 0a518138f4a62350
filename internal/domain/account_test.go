package domain

import (
	"encoding/json"
	"testing"
)

func TestParseAccountCode_Reserved(t *testing.T) {
	code, err := ParseAccountCode("@0002")
	if err != nil {
		t.Fatalf("ParseAccountCode returned error: %v", err)
	}
	if !code.IsReserved() {
		t.Fatal("expected reserved code")
	}
	if code.String() != "@0002" {
		t.Fatalf("expected canonical form @0002, got %q", code.String())
	}
}

func TestParseAccountCode_Custom(t *testing.T) {
	code, err := ParseAccountCode("17")
	if err != nil {
		t.Fatalf("ParseAccountCode returned error: %v", err)
	}
	if code.IsReserved() {
		t.Fatal("expected custom code")
	}
	if code.Custom() != 17 {
		t.Fatalf("expected custom value 17, got %d", code.Custom())
	}
	if code.String() != "17" {
		t.Fatalf("expected canonical form 17, got %q", code.String())
	}
}

func TestParseAccountCode_TrimsWhitespace(t *testing.T) {
	code, err := ParseAccountCode("  42  ")
	if err != nil {
		t.Fatalf("ParseAccountCode returned error: %v", err)
	}
	if code.Custom() != 42 {
		t.Fatalf("expected custom value 42, got %d", code.Custom())
	}
}

func TestParseAccountCode_Invalid(t *testing.T) {
	cases := []string{"", "   ", "abc", "-5", "0", "1.5"}
	for _, raw := range cases {
		if _, err := ParseAccountCode(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestAccountCode_ZeroValueIsNotSet(t *testing.T) {
	var code AccountCode
	if code.IsSet() {
		t.Fatal("zero value must report IsSet false")
	}
}

func TestAccountCode_JSONRoundTrip(t *testing.T) {
	for _, raw := range []string{"@0002", "17"} {
		code, err := ParseAccountCode(raw)
		if err != nil {
			t.Fatalf("ParseAccountCode(%q) returned error: %v", raw, err)
		}
		data, err := json.Marshal(code)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var back AccountCode
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if back.String() != code.String() || back.IsReserved() != code.IsReserved() {
			t.Fatalf("round trip changed code: %q -> %q", code, back)
		}
	}
}

func TestSortAccounts_ReservedFirstThenCustomAscending(t *testing.T) {
	accounts := []BankAccount{
		{Code: CustomCode(12)},
		{Code: ReservedCode("@0003")},
		{Code: CustomCode(3)},
		{Code: ReservedCode("@0002")},
		{Code: CustomCode(120)},
	}
	SortAccounts(accounts)

	want := []string{"@0002", "@0003", "3", "12", "120"}
	for i, account := range accounts {
		if account.Code.String() != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], account.Code)
		}
	}
}

func TestReservedCode_AddsPrefixWhenMissing(t *testing.T) {
	code := ReservedCode("0004")
	if code.String() != "@0004" {
		t.Fatalf("expected @0004, got %q", code.String())
	}
}
