/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for the ledger tables: bank accounts, the
 * append-only transaction log, the audit log, and the per-owner code counter.
 *
 * Batches map to pgx transactions. Atomic balance mutation is expressed as a
 * server-side `balance = balance + $n` update, never a read-modify-write, so
 * concurrent increments cannot lose updates.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storemax/ledger-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// pgxBatch wraps one pgx transaction as a store.Batch.
type pgxBatch struct {
	tx   pgx.Tx
	done bool
}

func (b *pgxBatch) Commit(ctx context.Context) error {
	if b.done {
		return nil
	}
	if err := b.tx.Commit(ctx); err != nil {
		return err
	}
	b.done = true
	return nil
}

func (b *pgxBatch) Rollback(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	return b.tx.Rollback(ctx)
}

// Begin opens a new batch backed by a database transaction.
func (r *PostgresRepository) Begin(ctx context.Context) (Batch, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxBatch{tx: tx}, nil
}

// querier is the subset of pgx operations shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// in returns the execution target for a write: the batch's transaction when one
// is supplied, the pool (per-statement auto-commit) otherwise.
func (r *PostgresRepository) in(b Batch) (querier, error) {
	if b == nil {
		return r.db, nil
	}
	pb, ok := b.(*pgxBatch)
	if !ok {
		return nil, ErrInvalidBatch
	}
	return pb.tx, nil
}

const accountColumns = `id, owner, code, name, agency_number, account_number, balance, is_default, register_date, modified_date`

func scanAccount(row pgx.Row) (*domain.BankAccount, error) {
	var account domain.BankAccount
	var rawCode string
	err := row.Scan(
		&account.ID,
		&account.Owner,
		&rawCode,
		&account.Name,
		&account.AgencyNumber,
		&account.AccountNumber,
		&account.Balance,
		&account.IsDefault,
		&account.RegisterDate,
		&account.ModifiedDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	code, err := domain.ParseAccountCode(rawCode)
	if err != nil {
		return nil, err
	}
	account.Code = code
	return &account, nil
}

// GetAccountByCode retrieves the single account matching a normalized code for one owner.
func (r *PostgresRepository) GetAccountByCode(ctx context.Context, owner string, code domain.AccountCode) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE owner = $1 AND code = $2`
	return scanAccount(r.db.QueryRow(ctx, query, owner, code.String()))
}

// GetAccountByName retrieves one account by its display name for one owner.
func (r *PostgresRepository) GetAccountByName(ctx context.Context, owner, name string) (*domain.BankAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE owner = $1 AND name = $2 LIMIT 1`
	return scanAccount(r.db.QueryRow(ctx, query, owner, name))
}

// NextAccountCode advances the owner's counter row and returns the allocated value.
func (r *PostgresRepository) NextAccountCode(ctx context.Context, b Batch, owner string) (int64, error) {
	q, err := r.in(b)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO account_code_counters (owner, last_value)
		VALUES ($1, 1)
		ON CONFLICT (owner)
		DO UPDATE SET last_value = account_code_counters.last_value + 1
		RETURNING last_value
	`
	var value int64
	if err := q.QueryRow(ctx, query, owner).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// UpsertAccount inserts a new account or updates the metadata of an existing
// one. The balance column is only written on insert; updates leave it to the
// IncrementBalance path.
func (r *PostgresRepository) UpsertAccount(ctx context.Context, b Batch, account *domain.BankAccount) error {
	q, err := r.in(b)
	if err != nil {
		return err
	}

	var codeNumber *int64
	if !account.Code.IsReserved() {
		n := account.Code.Custom()
		codeNumber = &n
	}

	query := `
		INSERT INTO bank_accounts (
			id, owner, code, code_number, name, agency_number, account_number,
			balance, is_default, register_date, modified_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (owner, code)
		DO UPDATE SET
			name = EXCLUDED.name,
			agency_number = EXCLUDED.agency_number,
			account_number = EXCLUDED.account_number,
			is_default = EXCLUDED.is_default,
			modified_date = NOW()
	`
	_, err = q.Exec(ctx, query,
		account.ID,
		account.Owner,
		account.Code.String(),
		codeNumber,
		account.Name,
		account.AgencyNumber,
		account.AccountNumber,
		account.Balance,
		account.IsDefault,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAccountCodeConflict
		}
		return err
	}
	return nil
}

// IncrementBalance applies an atomic server-side increment to the account balance.
func (r *PostgresRepository) IncrementBalance(ctx context.Context, b Batch, owner string, code domain.AccountCode, delta int64) error {
	q, err := r.in(b)
	if err != nil {
		return err
	}
	query := `UPDATE bank_accounts SET balance = balance + $1, modified_date = NOW() WHERE owner = $2 AND code = $3`
	tag, err := q.Exec(ctx, query, delta, owner, code.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes the account record. Historical transaction-log entries
// are kept untouched.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, b Batch, owner string, code domain.AccountCode) error {
	q, err := r.in(b)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM bank_accounts WHERE owner = $1 AND code = $2`, owner, code.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendTransaction appends one entry to the transaction log.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, b Batch, entry *domain.BankTransaction) error {
	q, err := r.in(b)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO bank_transactions (id, owner, account_code, account_name, type, value, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err = q.Exec(ctx, query,
		entry.ID,
		entry.Owner,
		entry.AccountCode.String(),
		entry.AccountName,
		string(entry.Type),
		entry.Value,
		entry.Description,
	)
	return err
}

// AppendAuditEntry appends one structured audit-log record.
func (r *PostgresRepository) AppendAuditEntry(ctx context.Context, b Batch, entry *domain.AuditEntry) error {
	q, err := r.in(b)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ledger_audit_log (id, owner, account_code, action, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err = q.Exec(ctx, query,
		entry.ID,
		entry.Owner,
		entry.AccountCode.String(),
		string(entry.Action),
		entry.Note,
	)
	return err
}

// ListAccounts returns one page of the owner's accounts in display order:
// reserved codes first, then custom codes, each group ascending.
func (r *PostgresRepository) ListAccounts(ctx context.Context, owner string, opts ListOptions) ([]domain.BankAccount, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE owner = $1
		ORDER BY (code_number IS NOT NULL), code_number, code
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.BankAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// CountAccounts returns the total number of accounts for the owner.
func (r *PostgresRepository) CountAccounts(ctx context.Context, owner string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bank_accounts WHERE owner = $1`, owner).Scan(&count)
	return count, err
}

// ListTransactions returns the transaction log for one account, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, owner string, code domain.AccountCode, opts ListOptions) ([]domain.BankTransaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, owner, account_code, account_name, type, value, description, created_at
		FROM bank_transactions
		WHERE owner = $1 AND account_code = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, owner, code.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.BankTransaction
	for rows.Next() {
		var entry domain.BankTransaction
		var rawCode, rawType string
		if err := rows.Scan(
			&entry.ID,
			&entry.Owner,
			&rawCode,
			&entry.AccountName,
			&rawType,
			&entry.Value,
			&entry.Description,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		parsed, err := domain.ParseAccountCode(rawCode)
		if err != nil {
			return nil, err
		}
		entry.AccountCode = parsed
		entry.Type = domain.TransactionType(rawType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListOwners returns every owner that has at least one account.
func (r *PostgresRepository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT owner FROM bank_accounts ORDER BY owner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// SumTransactionDeltas returns the net sum of committed transaction deltas for
// one account: deposits credit, withdrawals and transfers debit.
func (r *PostgresRepository) SumTransactionDeltas(ctx context.Context, owner string, code domain.AccountCode) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = 'DEPOSIT' THEN value ELSE -value END), 0)
		FROM bank_transactions
		WHERE owner = $1 AND account_code = $2
	`
	var sum int64
	err := r.db.QueryRow(ctx, query, owner, code.String()).Scan(&sum)
	return sum, err
}
