/**
 * @description
 * This file contains the core business logic for the ledger-service. The `Service`
 * struct owns bank-account records for each tenant, keeps balances coupled to the
 * append-only transaction log, orchestrates atomic two-sided transfers, and
 * provisions the default company-vault account.
 *
 * Key features:
 * - Every operation takes an explicit owner (tenant) identifier; there is no
 *   ambient session state.
 * - Balance changes only flow through the transaction-coupled increment path,
 *   batched together with their log and audit entries.
 * - A transfer composes two account registrations into one shared batch, so
 *   either both balance changes and both log entries land, or none do.
 * - Publishes account-change events to RabbitMQ for live views.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storemax/ledger-service/internal/domain"
	"github.com/storemax/ledger-service/internal/store"
	"github.com/storemax/ledger-service/pkg/rabbitmq"
)

const (
	// EventsExchange is the topic exchange account-change events are published to.
	EventsExchange = "ledger.events"

	RoutingKeyAccountCreated = "ledger.account.created"
	RoutingKeyAccountUpdated = "ledger.account.updated"
	RoutingKeyAccountDeleted = "ledger.account.deleted"

	// Vault provisioning probes reserved codes in this range when the primary
	// slot is taken by a differently-named account.
	vaultFirstReservedSlot = 2
	vaultLastReservedSlot  = 20
	// Legacy tenants were provisioned before the by-name lookup existed; their
	// vaults live somewhere in @0002..@0005.
	vaultLastLegacySlot = 5
)

// vaultDisplayNames are the translated display names a vault account may carry.
// The first entry is used when creating a new vault.
var vaultDisplayNames = []string{"COMPANY VAULT", "Cofre da Empresa"}

var (
	ErrOwnerRequired           = errors.New("owner is required")
	ErrMissingTransferAccounts = errors.New("transfer requires both source and destination accounts")
	ErrSameTransferAccounts    = errors.New("source must differ from destination")
	ErrInvalidTransferValue    = errors.New("transfer value must be greater than zero")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidTransactionValue = errors.New("transaction value must be greater than zero")
	ErrInvalidTransactionType  = errors.New("transaction type must be DEPOSIT, WITHDRAW or TRANSFER")
	ErrDefaultAccountProtected = errors.New("default accounts cannot be deleted")
	ErrNoFreeReservedCode      = errors.New("no free reserved code available for vault account")
	ErrTransferRateLimited     = errors.New("transfer rate limit exceeded")
)

// TransferRateLimiter is the optional distributed limiter applied to transfers.
type TransferRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo   store.Repository
	events rabbitmq.Publisher

	transferLimiter        TransferRateLimiter
	transferLimitPerMinute int

	flexDefaults FlexQueryOptions
}

// NewService creates a new ledger service instance. The publisher may be nil,
// in which case change events are skipped.
func NewService(repo store.Repository, events rabbitmq.Publisher) *Service {
	return &Service{repo: repo, events: events}
}

// SetTransferRateLimiter installs a distributed rate limiter for transfers.
func (s *Service) SetTransferRateLimiter(limiter TransferRateLimiter, limitPerMinute int) {
	s.transferLimiter = limiter
	s.transferLimitPerMinute = limitPerMinute
}

// GetAccount returns the single account matching the given raw code for the
// owner, or nil when no such account exists. Absence is not an error. The code
// is normalized to its correct namespace before querying because the store is
// type-sensitive on equality filters.
func (s *Service) GetAccount(ctx context.Context, owner, rawCode string) (*domain.BankAccount, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	code, err := domain.ParseAccountCode(rawCode)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.GetAccountByCode(ctx, owner, code)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// RegisterAccount creates or updates an account. A nil input.Code means
// creation: the next custom code is allocated from the owner's counter. An
// embedded transaction is stripped from the account body, validated before any
// write, applied as an atomic increment, and appended to the transaction log,
// all inside one batch together with the audit entry. When the caller supplies
// a batch the writes are deferred to the caller's commit; otherwise the call
// commits its own batch.
func (s *Service) RegisterAccount(ctx context.Context, owner string, input domain.AccountInput, b store.Batch) (*domain.BankAccount, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	// Fail fast: a bad embedded transaction must reject the whole operation
	// before any write is attempted.
	if input.Transaction != nil {
		if !input.Transaction.Type.Valid() {
			return nil, ErrInvalidTransactionType
		}
		if input.Transaction.Value <= 0 {
			return nil, ErrInvalidTransactionValue
		}
	}

	ownBatch := b == nil
	if ownBatch {
		var err error
		b, err = s.repo.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open batch: %w", err)
		}
		defer b.Rollback(ctx)
	}

	creating := input.Code == nil
	action := domain.AuditActionUpdate

	var code domain.AccountCode
	if creating {
		action = domain.AuditActionRegister
		next, err := s.repo.NextAccountCode(ctx, b, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate account code: %w", err)
		}
		code = domain.CustomCode(next)
	} else {
		code = *input.Code
	}

	account := &domain.BankAccount{
		ID:            uuid.New(),
		Owner:         owner,
		Code:          code,
		Name:          input.Name,
		AgencyNumber:  input.AgencyNumber,
		AccountNumber: input.AccountNumber,
		IsDefault:     input.IsDefault,
	}
	if err := s.repo.UpsertAccount(ctx, b, account); err != nil {
		return nil, fmt.Errorf("failed to write account: %w", err)
	}

	if input.Transaction != nil {
		delta := input.Transaction.Type.BalanceDelta(input.Transaction.Value)
		if err := s.repo.IncrementBalance(ctx, b, owner, code, delta); err != nil {
			return nil, fmt.Errorf("failed to apply balance increment: %w", err)
		}
		entry := &domain.BankTransaction{
			ID:          uuid.New(),
			Owner:       owner,
			AccountCode: code,
			AccountName: input.Name,
			Type:        input.Transaction.Type,
			Value:       input.Transaction.Value,
			Description: input.Transaction.Description,
		}
		if err := s.repo.AppendTransaction(ctx, b, entry); err != nil {
			return nil, fmt.Errorf("failed to append transaction log entry: %w", err)
		}
	}

	audit := &domain.AuditEntry{
		ID:          uuid.New(),
		Owner:       owner,
		AccountCode: code,
		Action:      action,
		Note:        input.Name,
	}
	if err := s.repo.AppendAuditEntry(ctx, b, audit); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	if !ownBatch {
		// The caller owns the commit; hand back the staged record.
		return account, nil
	}

	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	kind := domain.ChangeUpdate
	routingKey := RoutingKeyAccountUpdated
	if creating {
		kind = domain.ChangeAdd
		routingKey = RoutingKeyAccountCreated
	}
	s.publishAccountChange(ctx, kind, routingKey, owner, code)

	committed, err := s.repo.GetAccountByCode(ctx, owner, code)
	if err != nil {
		// The write is committed; the re-read is best effort.
		log.Printf("level=warn component=ledger msg=\"post-commit account read failed\" owner=%s code=%s err=%v", owner, code, err)
		return account, nil
	}
	return committed, nil
}

// DeleteAccount removes the account record and writes a deletion audit entry in
// the same atomicity unit. Deletion is logged but never rewrites historical
// transaction entries. System-provisioned default accounts are protected.
func (s *Service) DeleteAccount(ctx context.Context, owner, rawCode string, b store.Batch) error {
	if owner == "" {
		return ErrOwnerRequired
	}
	code, err := domain.ParseAccountCode(rawCode)
	if err != nil {
		return err
	}

	account, err := s.repo.GetAccountByCode(ctx, owner, code)
	if err != nil {
		return err
	}
	if account.IsDefault {
		return ErrDefaultAccountProtected
	}

	ownBatch := b == nil
	if ownBatch {
		b, err = s.repo.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to open batch: %w", err)
		}
		defer b.Rollback(ctx)
	}

	if err := s.repo.DeleteAccount(ctx, b, owner, code); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	audit := &domain.AuditEntry{
		ID:          uuid.New(),
		Owner:       owner,
		AccountCode: code,
		Action:      domain.AuditActionDelete,
		Note:        account.Name,
	}
	if err := s.repo.AppendAuditEntry(ctx, b, audit); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if !ownBatch {
		return nil
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	s.publishAccountEvent(ctx, domain.ChangeDelete, RoutingKeyAccountDeleted, *account)
	return nil
}

// TransferBetweenAccounts moves value from one account to another as one
// logical unit: validate with no I/O, resolve both accounts concurrently, apply
// the soft balance guard, then commit a TRANSFER debit on the source and a
// DEPOSIT credit on the destination inside a single shared batch.
//
// The balance guard is a check-then-act read: two concurrent transfers from the
// same account can both pass it against a stale balance. The increments
// themselves are store-atomic and never lose updates, but the balance can go
// negative under concurrent load. Preserved intentionally; see DESIGN.md.
func (s *Service) TransferBetweenAccounts(ctx context.Context, owner, fromRaw, toRaw string, value int64, description string) error {
	if owner == "" {
		return ErrOwnerRequired
	}
	if fromRaw == "" || toRaw == "" {
		return ErrMissingTransferAccounts
	}
	fromCode, err := domain.ParseAccountCode(fromRaw)
	if err != nil {
		return err
	}
	toCode, err := domain.ParseAccountCode(toRaw)
	if err != nil {
		return err
	}
	if fromCode.String() == toCode.String() {
		return ErrSameTransferAccounts
	}
	if value <= 0 {
		return ErrInvalidTransferValue
	}

	if retryAfter, err := s.consumeTransferRateLimit(ctx, owner); err != nil {
		return fmt.Errorf("%w: retry in %ds", err, retryAfter)
	}

	var (
		wg             sync.WaitGroup
		fromAcc, toAcc *domain.BankAccount
		fromErr, toErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		fromAcc, fromErr = s.repo.GetAccountByCode(ctx, owner, fromCode)
	}()
	go func() {
		defer wg.Done()
		toAcc, toErr = s.repo.GetAccountByCode(ctx, owner, toCode)
	}()
	wg.Wait()

	if fromErr != nil {
		return fmt.Errorf("source account %s: %w", fromCode, fromErr)
	}
	if toErr != nil {
		return fmt.Errorf("destination account %s: %w", toCode, toErr)
	}

	if fromAcc.Balance-value < 0 {
		return fmt.Errorf("%w: account %s holds %s, transfer needs %s",
			ErrInsufficientBalance, fromCode, domain.FormatAmount(fromAcc.Balance), domain.FormatAmount(value))
	}

	sourceDescription := description
	if sourceDescription == "" {
		sourceDescription = fmt.Sprintf("Transfer to %s", toAcc.Name)
	}
	destDescription := description
	if destDescription == "" {
		destDescription = fmt.Sprintf("Transfer from %s", fromAcc.Name)
	}

	b, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open batch: %w", err)
	}
	defer b.Rollback(ctx)

	sourceUpdate := domain.AccountInput{
		Code:          &fromAcc.Code,
		Name:          fromAcc.Name,
		AgencyNumber:  fromAcc.AgencyNumber,
		AccountNumber: fromAcc.AccountNumber,
		IsDefault:     fromAcc.IsDefault,
		Transaction: &domain.TransactionInput{
			Type:        domain.TransactionTransfer,
			Value:       value,
			Description: sourceDescription,
		},
	}
	destUpdate := domain.AccountInput{
		Code:          &toAcc.Code,
		Name:          toAcc.Name,
		AgencyNumber:  toAcc.AgencyNumber,
		AccountNumber: toAcc.AccountNumber,
		IsDefault:     toAcc.IsDefault,
		Transaction: &domain.TransactionInput{
			Type:        domain.TransactionDeposit,
			Value:       value,
			Description: destDescription,
		},
	}

	if _, err := s.RegisterAccount(ctx, owner, sourceUpdate, b); err != nil {
		return fmt.Errorf("failed to stage source debit: %w", err)
	}
	if _, err := s.RegisterAccount(ctx, owner, destUpdate, b); err != nil {
		return fmt.Errorf("failed to stage destination credit: %w", err)
	}

	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}

	s.publishAccountChange(ctx, domain.ChangeUpdate, RoutingKeyAccountUpdated, owner, fromCode)
	s.publishAccountChange(ctx, domain.ChangeUpdate, RoutingKeyAccountUpdated, owner, toCode)
	return nil
}

// EnsureDefaultVaultAccount lazily provisions the company-vault account for an
// owner. Safe to call on every login or startup: when a vault already exists
// the call is a no-op. Otherwise the vault is created at the lowest unused
// reserved code starting from @0002, with zero balance, in its own batch.
func (s *Service) EnsureDefaultVaultAccount(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrOwnerRequired
	}

	for _, name := range vaultDisplayNames {
		account, err := s.repo.GetAccountByName(ctx, owner, name)
		if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
			return err
		}
		if account != nil {
			return nil
		}
	}

	code, err := s.firstFreeReservedCode(ctx, owner)
	if err != nil {
		return err
	}

	input := domain.AccountInput{
		Code:      &code,
		Name:      vaultDisplayNames[0],
		IsDefault: true,
	}
	if _, err := s.RegisterAccount(ctx, owner, input, nil); err != nil {
		return fmt.Errorf("failed to provision vault account: %w", err)
	}
	log.Printf("level=info component=ledger msg=\"vault account provisioned\" owner=%s code=%s", owner, code)
	return nil
}

// firstFreeReservedCode probes @0002 and then scans up to @0020 for the first
// reserved slot not occupied by another account.
func (s *Service) firstFreeReservedCode(ctx context.Context, owner string) (domain.AccountCode, error) {
	for slot := vaultFirstReservedSlot; slot <= vaultLastReservedSlot; slot++ {
		code := domain.ReservedCode(fmt.Sprintf("@%04d", slot))
		_, err := s.repo.GetAccountByCode(ctx, owner, code)
		if errors.Is(err, store.ErrAccountNotFound) {
			return code, nil
		}
		if err != nil {
			return domain.AccountCode{}, err
		}
	}
	return domain.AccountCode{}, ErrNoFreeReservedCode
}

// GetVaultAccount looks the vault up by its translated display name first and
// falls back to probing the legacy reserved codes @0002..@0005 whose name
// matches, for tenants provisioned before the by-name lookup existed. Returns
// nil when no vault exists; callers treat absence as "feature not available",
// not as an error.
func (s *Service) GetVaultAccount(ctx context.Context, owner string) (*domain.BankAccount, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	for _, name := range vaultDisplayNames {
		account, err := s.repo.GetAccountByName(ctx, owner, name)
		if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}

	for slot := vaultFirstReservedSlot; slot <= vaultLastLegacySlot; slot++ {
		code := domain.ReservedCode(fmt.Sprintf("@%04d", slot))
		account, err := s.repo.GetAccountByCode(ctx, owner, code)
		if errors.Is(err, store.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if isVaultName(account.Name) {
			return account, nil
		}
	}
	return nil, nil
}

func isVaultName(name string) bool {
	for _, candidate := range vaultDisplayNames {
		if name == candidate {
			return true
		}
	}
	return false
}

// ListAccounts returns one page of the owner's accounts in display order.
func (s *Service) ListAccounts(ctx context.Context, owner string, opts store.ListOptions) ([]domain.BankAccount, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	return s.repo.ListAccounts(ctx, owner, opts)
}

// CountAccounts returns the total number of accounts for the owner.
func (s *Service) CountAccounts(ctx context.Context, owner string) (int, error) {
	if owner == "" {
		return 0, ErrOwnerRequired
	}
	return s.repo.CountAccounts(ctx, owner)
}

// ListTransactions returns the transaction log for one account, newest first.
func (s *Service) ListTransactions(ctx context.Context, owner, rawCode string, opts store.ListOptions) ([]domain.BankTransaction, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	code, err := domain.ParseAccountCode(rawCode)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, owner, code, opts)
}

func (s *Service) consumeTransferRateLimit(ctx context.Context, owner string) (int, error) {
	if s.transferLimiter == nil || s.transferLimitPerMinute <= 0 {
		return 0, nil
	}
	count, retryAfter, err := s.transferLimiter.ConsumeRateLimit(ctx, "transfer", owner, s.transferLimitPerMinute, time.Minute)
	if err != nil {
		// Limiter outages never block transfers.
		log.Printf("level=warn component=ledger msg=\"transfer rate limiter unavailable\" owner=%s err=%v", owner, err)
		return 0, nil
	}
	if count > s.transferLimitPerMinute {
		return retryAfter, ErrTransferRateLimited
	}
	return 0, nil
}

// publishAccountChange re-reads the committed record and publishes it. The
// event stream is best effort; failures are logged, never surfaced.
func (s *Service) publishAccountChange(ctx context.Context, kind domain.ChangeKind, routingKey, owner string, code domain.AccountCode) {
	if s.events == nil {
		return
	}
	account, err := s.repo.GetAccountByCode(ctx, owner, code)
	if err != nil {
		log.Printf("level=warn component=ledger msg=\"change event read failed\" owner=%s code=%s err=%v", owner, code, err)
		return
	}
	s.publishAccountEvent(ctx, kind, routingKey, *account)
}

func (s *Service) publishAccountEvent(ctx context.Context, kind domain.ChangeKind, routingKey string, account domain.BankAccount) {
	if s.events == nil {
		return
	}
	event := domain.AccountChangeEvent{
		Kind:      kind,
		Owner:     account.Owner,
		Account:   account,
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, EventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"change event publish failed\" owner=%s code=%s err=%v", account.Owner, account.Code, err)
	}
}
