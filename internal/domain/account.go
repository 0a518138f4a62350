/**
 * @description
 * This file defines the core domain models for the ledger-service. Accounts carry
 * a two-namespace code: system-reserved codes (prefixed "@", assigned by the
 * platform for default accounts such as the company vault) and tenant-scoped
 * auto-incrementing numeric codes (assigned by a per-owner counter).
 *
 * @notes
 * - `AccountCode` is modelled as an explicit sum type instead of a raw string,
 *   so the reserved-vs-custom distinction is carried in the type rather than
 *   re-derived by sniffing the first character at every call site.
 * - Balances are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReservedCodePrefix marks system-assigned account codes (e.g. "@0002").
const ReservedCodePrefix = "@"

var (
	ErrEmptyAccountCode   = errors.New("account code must not be empty")
	ErrInvalidAccountCode = errors.New("account code must be an integer or an @-prefixed reserved code")
)

// AccountCode identifies an account within one owner. It is either a reserved
// code (string, "@"-prefixed) or a custom code (positive integer). The zero
// value is "no code" and reports false from IsSet.
type AccountCode struct {
	reserved string
	custom   int64
}

// ReservedCode builds a reserved account code. The prefix is added if missing.
func ReservedCode(code string) AccountCode {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, ReservedCodePrefix) {
		code = ReservedCodePrefix + code
	}
	return AccountCode{reserved: code}
}

// CustomCode builds a tenant-scoped numeric account code.
func CustomCode(n int64) AccountCode {
	return AccountCode{custom: n}
}

// ParseAccountCode normalizes a raw code to its correct namespace: strings
// prefixed with "@" stay reserved codes, anything else must parse as an
// integer. The underlying store is type-sensitive on equality filters, so all
// lookups go through this normalization.
func ParseAccountCode(raw string) (AccountCode, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AccountCode{}, ErrEmptyAccountCode
	}
	if strings.HasPrefix(raw, ReservedCodePrefix) {
		return AccountCode{reserved: raw}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return AccountCode{}, fmt.Errorf("%w: %q", ErrInvalidAccountCode, raw)
	}
	return AccountCode{custom: n}, nil
}

// IsSet reports whether the code carries a value.
func (c AccountCode) IsSet() bool {
	return c.reserved != "" || c.custom != 0
}

// IsReserved reports whether the code belongs to the reserved namespace.
func (c AccountCode) IsReserved() bool {
	return c.reserved != ""
}

// Custom returns the numeric value of a custom code, or 0 for reserved codes.
func (c AccountCode) Custom() int64 {
	return c.custom
}

// String returns the canonical text form: the reserved code as-is, or the
// decimal representation of the custom code.
func (c AccountCode) String() string {
	if c.reserved != "" {
		return c.reserved
	}
	return strconv.FormatInt(c.custom, 10)
}

// Less orders codes the way account listings are displayed: reserved codes
// first (ascending), then custom codes (ascending).
func (c AccountCode) Less(other AccountCode) bool {
	if c.IsReserved() != other.IsReserved() {
		return c.IsReserved()
	}
	if c.IsReserved() {
		return c.reserved < other.reserved
	}
	return c.custom < other.custom
}

// MarshalText implements encoding.TextMarshaler so codes serialize as their
// canonical string form in JSON payloads.
func (c AccountCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *AccountCode) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountCode(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// BankAccount represents one bank account owned by a tenant. `Balance` is the
// only field mutated outside whole-record edits, and only through the
// transaction-coupled increment path.
type BankAccount struct {
	ID            uuid.UUID   `json:"id"`
	Owner         string      `json:"owner"`
	Code          AccountCode `json:"code"`
	Name          string      `json:"name"`
	AgencyNumber  string      `json:"agency_number"`
	AccountNumber string      `json:"account_number"`
	Balance       int64       `json:"balance"` // in cents
	IsDefault     bool        `json:"is_default"`
	RegisterDate  time.Time   `json:"register_date"`
	ModifiedDate  time.Time   `json:"modified_date"`
}

// SortAccounts orders accounts for display: reserved codes first, then custom
// codes, each group ascending.
func SortAccounts(accounts []BankAccount) {
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Code.Less(accounts[j].Code)
	})
}

// AccountCounter is the {current, total} pair emitted alongside the live
// account listing: how many records the view currently holds versus how many
// exist for the owner in the store.
type AccountCounter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}
