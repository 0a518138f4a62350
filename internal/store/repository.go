/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the ledger-service, and the `Batch`
 * abstraction that groups writes into one atomic unit. By defining an interface
 * we decouple the ledger's business logic from the PostgreSQL implementation,
 * making the code modular and easy to test against in-memory fakes.
 *
 * Batches are how multi-step operations compose: registering an account writes
 * the record, its transaction-log entry and its audit entry in one batch, and a
 * transfer pushes two registrations into one shared batch so both sides commit
 * or neither does.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/storemax/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountCodeConflict = errors.New("account code already in use")
	ErrInvalidBatch        = errors.New("batch was not created by this repository")
)

// Batch is one atomic unit of writes. Writes staged through repository methods
// that accept a Batch become visible only after Commit; Rollback discards them.
// Rollback after a successful Commit is a no-op, so `defer batch.Rollback(ctx)`
// is always safe.
type Batch interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ListOptions controls the paged account listing used by the flex query path.
type ListOptions struct {
	Limit  int
	Offset int
}

// Repository defines the set of methods for interacting with the ledger store.
// Every method is scoped by an explicit owner (tenant) identifier.
type Repository interface {
	// Begin opens a new batch. Every write method below accepts a batch; a nil
	// batch makes the write auto-commit on its own.
	Begin(ctx context.Context) (Batch, error)

	// Account lookups. Not-found is reported as ErrAccountNotFound, never as a
	// nil-nil pair; the service layer translates where needed.
	GetAccountByCode(ctx context.Context, owner string, code domain.AccountCode) (*domain.BankAccount, error)
	GetAccountByName(ctx context.Context, owner, name string) (*domain.BankAccount, error)

	// NextAccountCode advances the owner's auto-increment counter and returns
	// the allocated custom code value. When called with a batch the allocation
	// is part of the batch and rolls back with it.
	NextAccountCode(ctx context.Context, b Batch, owner string) (int64, error)

	// UpsertAccount inserts the account or updates its metadata fields. The
	// balance column is written only on insert; updates never overwrite it, so
	// balance mutation stays confined to IncrementBalance.
	UpsertAccount(ctx context.Context, b Batch, account *domain.BankAccount) error

	// IncrementBalance applies a server-side atomic increment to the account
	// balance. It is never a read-modify-write.
	IncrementBalance(ctx context.Context, b Batch, owner string, code domain.AccountCode, delta int64) error

	// DeleteAccount removes the account record. Historical transaction-log
	// entries are left untouched.
	DeleteAccount(ctx context.Context, b Batch, owner string, code domain.AccountCode) error

	// AppendTransaction appends one entry to the transaction log.
	AppendTransaction(ctx context.Context, b Batch, entry *domain.BankTransaction) error

	// AppendAuditEntry appends one structured audit-log record.
	AppendAuditEntry(ctx context.Context, b Batch, entry *domain.AuditEntry) error

	// ListAccounts returns one page of the owner's accounts ordered for
	// display: reserved codes first, then custom codes, each ascending.
	ListAccounts(ctx context.Context, owner string, opts ListOptions) ([]domain.BankAccount, error)

	// CountAccounts returns the total number of accounts for the owner.
	CountAccounts(ctx context.Context, owner string) (int, error)

	// ListTransactions returns the transaction log for one account, newest first.
	ListTransactions(ctx context.Context, owner string, code domain.AccountCode, opts ListOptions) ([]domain.BankTransaction, error)

	// Reconciliation support: all owners known to the store, and the net sum
	// of committed transaction deltas for one account since creation.
	ListOwners(ctx context.Context) ([]string, error)
	SumTransactionDeltas(ctx context.Context, owner string, code domain.AccountCode) (int64, error)
}
