/**
 * @description
 * This file defines the transaction-log and audit models for the ledger-service,
 * plus the DTOs used by the HTTP layer. Transaction values are always positive;
 * direction is implied by the transaction type, never encoded as a negative
 * number in the log.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates the supported balance mutations.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "DEPOSIT"
	TransactionWithdraw TransactionType = "WITHDRAW"
	TransactionTransfer TransactionType = "TRANSFER"
)

// BalanceDelta returns the signed balance change implied by the type for a
// positive value: deposits credit, withdrawals and transfers debit.
func (t TransactionType) BalanceDelta(value int64) int64 {
	switch t {
	case TransactionDeposit:
		return value
	case TransactionWithdraw, TransactionTransfer:
		return -value
	default:
		return 0
	}
}

// Valid reports whether the type is one of the supported mutations.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdraw, TransactionTransfer:
		return true
	}
	return false
}

// BankTransaction is one append-only log entry recording a balance mutation.
// Entries are conceptually owned by an account but persisted in a separate
// log for audit; deleting an account never rewrites its historical entries.
type BankTransaction struct {
	ID          uuid.UUID       `json:"id"`
	Owner       string          `json:"owner"`
	AccountCode AccountCode     `json:"account_code"`
	AccountName string          `json:"account_name"`
	Type        TransactionType `json:"type"`
	Value       int64           `json:"value"` // in cents, always positive
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AuditAction enumerates the account lifecycle actions recorded in the audit log.
type AuditAction string

const (
	AuditActionRegister AuditAction = "register"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
)

// AuditEntry is one structured audit-log record referencing an account by code.
// It is written in the same batch as the mutation it describes.
type AuditEntry struct {
	ID          uuid.UUID   `json:"id"`
	Owner       string      `json:"owner"`
	AccountCode AccountCode `json:"account_code"`
	Action      AuditAction `json:"action"`
	Note        string      `json:"note,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TransactionInput is the embedded transaction a caller may attach to an
// account registration. It is stripped from the account body before the write
// and applied through the atomic increment path.
type TransactionInput struct {
	Type        TransactionType `json:"type"`
	Value       int64           `json:"value"` // in cents
	Description string          `json:"description"`
}

// AccountInput is the payload for registering (creating or updating) an
// account. A nil Code means creation: the service allocates the next custom
// code from the owner's counter.
type AccountInput struct {
	Code          *AccountCode      `json:"code,omitempty"`
	Name          string            `json:"name"`
	AgencyNumber  string            `json:"agency_number"`
	AccountNumber string            `json:"account_number"`
	IsDefault     bool              `json:"is_default"`
	Transaction   *TransactionInput `json:"transaction,omitempty"`
}

// TransferRequest is the DTO for the transfer endpoint. Amount arrives as a
// locale-formatted string ("1.234,56" or "1,234.56") and is parsed to cents
// before reaching the service.
type TransferRequest struct {
	FromCode    string `json:"from_code"`
	ToCode      string `json:"to_code"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// ChangeKind tags incremental account-change events for the live view.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "ADD"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// AccountChangeEvent is published to the `ledger.events` exchange after a
// commit and consumed by the live account view.
type AccountChangeEvent struct {
	Kind      ChangeKind  `json:"kind"`
	Owner     string      `json:"owner"`
	Account   BankAccount `json:"account"`
	Timestamp time.Time   `json:"timestamp"`
}
