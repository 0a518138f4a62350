package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/storemax/ledger-service/internal/domain"
	"github.com/storemax/ledger-service/internal/store"
)

// fakeRepository is an in-memory store.Repository used by the service tests.
// Writes issued through a batch stay staged until Commit, which lets tests
// assert transfer atomicity and simulate commit failures.
type fakeRepository struct {
	mu           sync.Mutex
	accounts     map[string]*domain.BankAccount
	transactions []domain.BankTransaction
	audits       []domain.AuditEntry
	counters     map[string]int64

	// commitErr fails the next batch commit when set.
	commitErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accounts: make(map[string]*domain.BankAccount),
		counters: make(map[string]int64),
	}
}

func accountKey(owner string, code domain.AccountCode) string {
	return owner + "|" + code.String()
}

type stagedIncrement struct {
	key   string
	delta int64
}

type fakeBatch struct {
	repo *fakeRepository
	done bool

	upserts    []*domain.BankAccount
	increments []stagedIncrement
	deletes    []string
	txns       []domain.BankTransaction
	audits     []domain.AuditEntry
}

func (b *fakeBatch) Commit(ctx context.Context) error {
	if b.done {
		return store.ErrInvalidBatch
	}
	b.done = true

	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	if b.repo.commitErr != nil {
		err := b.repo.commitErr
		b.repo.commitErr = nil
		return err
	}

	for _, account := range b.upserts {
		b.repo.applyUpsert(account)
	}
	for _, inc := range b.increments {
		account, ok := b.repo.accounts[inc.key]
		if !ok {
			return store.ErrAccountNotFound
		}
		account.Balance += inc.delta
	}
	for _, key := range b.deletes {
		delete(b.repo.accounts, key)
	}
	b.repo.transactions = append(b.repo.transactions, b.txns...)
	b.repo.audits = append(b.repo.audits, b.audits...)
	return nil
}

func (b *fakeBatch) Rollback(ctx context.Context) error {
	b.done = true
	return nil
}

// applyUpsert mirrors the SQL upsert: metadata always, balance only on insert.
// Callers must hold the mutex.
func (r *fakeRepository) applyUpsert(account *domain.BankAccount) {
	key := accountKey(account.Owner, account.Code)
	if existing, ok := r.accounts[key]; ok {
		existing.Name = account.Name
		existing.AgencyNumber = account.AgencyNumber
		existing.AccountNumber = account.AccountNumber
		existing.IsDefault = account.IsDefault
		existing.ModifiedDate = time.Now()
		return
	}
	clone := *account
	clone.RegisterDate = time.Now()
	clone.ModifiedDate = clone.RegisterDate
	r.accounts[key] = &clone
}

func (r *fakeRepository) Begin(ctx context.Context) (store.Batch, error) {
	return &fakeBatch{repo: r}, nil
}

func (r *fakeRepository) batch(b store.Batch) (*fakeBatch, error) {
	if b == nil {
		return &fakeBatch{repo: r}, nil
	}
	fb, ok := b.(*fakeBatch)
	if !ok {
		return nil, store.ErrInvalidBatch
	}
	return fb, nil
}

// finish commits single-shot batches opened for nil-batch writes.
func (r *fakeRepository) finish(b store.Batch, fb *fakeBatch) error {
	if b == nil {
		return fb.Commit(context.Background())
	}
	return nil
}

func (r *fakeRepository) GetAccountByCode(ctx context.Context, owner string, code domain.AccountCode) (*domain.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountKey(owner, code)]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	clone := *account
	return &clone, nil
}

func (r *fakeRepository) GetAccountByName(ctx context.Context, owner, name string) (*domain.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Owner == owner && account.Name == name {
			clone := *account
			return &clone, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *fakeRepository) NextAccountCode(ctx context.Context, b store.Batch, owner string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[owner]++
	return r.counters[owner], nil
}

func (r *fakeRepository) UpsertAccount(ctx context.Context, b store.Batch, account *domain.BankAccount) error {
	fb, err := r.batch(b)
	if err != nil {
		return err
	}
	clone := *account
	fb.upserts = append(fb.upserts, &clone)
	return r.finish(b, fb)
}

func (r *fakeRepository) IncrementBalance(ctx context.Context, b store.Batch, owner string, code domain.AccountCode, delta int64) error {
	fb, err := r.batch(b)
	if err != nil {
		return err
	}
	fb.increments = append(fb.increments, stagedIncrement{key: accountKey(owner, code), delta: delta})
	return r.finish(b, fb)
}

func (r *fakeRepository) DeleteAccount(ctx context.Context, b store.Batch, owner string, code domain.AccountCode) error {
	fb, err := r.batch(b)
	if err != nil {
		return err
	}
	fb.deletes = append(fb.deletes, accountKey(owner, code))
	return r.finish(b, fb)
}

func (r *fakeRepository) AppendTransaction(ctx context.Context, b store.Batch, entry *domain.BankTransaction) error {
	fb, err := r.batch(b)
	if err != nil {
		return err
	}
	fb.txns = append(fb.txns, *entry)
	return r.finish(b, fb)
}

func (r *fakeRepository) AppendAuditEntry(ctx context.Context, b store.Batch, entry *domain.AuditEntry) error {
	fb, err := r.batch(b)
	if err != nil {
		return err
	}
	fb.audits = append(fb.audits, *entry)
	return r.finish(b, fb)
}

func (r *fakeRepository) ListAccounts(ctx context.Context, owner string, opts store.ListOptions) ([]domain.BankAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.BankAccount
	for _, account := range r.accounts {
		if account.Owner == owner {
			all = append(all, *account)
		}
	}
	domain.SortAccounts(all)

	if opts.Offset >= len(all) {
		return nil, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (r *fakeRepository) CountAccounts(ctx context.Context, owner string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, account := range r.accounts {
		if account.Owner == owner {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepository) ListTransactions(ctx context.Context, owner string, code domain.AccountCode, opts store.ListOptions) ([]domain.BankTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []domain.BankTransaction
	for i := len(r.transactions) - 1; i >= 0; i-- {
		entry := r.transactions[i]
		if entry.Owner == owner && entry.AccountCode.String() == code.String() {
			entries = append(entries, entry)
		}
	}
	if opts.Offset >= len(entries) {
		return nil, nil
	}
	entries = entries[opts.Offset:]
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

func (r *fakeRepository) ListOwners(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var owners []string
	for _, account := range r.accounts {
		if !seen[account.Owner] {
			seen[account.Owner] = true
			owners = append(owners, account.Owner)
		}
	}
	return owners, nil
}

func (r *fakeRepository) SumTransactionDeltas(ctx context.Context, owner string, code domain.AccountCode) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, entry := range r.transactions {
		if entry.Owner == owner && entry.AccountCode.String() == code.String() {
			sum += entry.Type.BalanceDelta(entry.Value)
		}
	}
	return sum, nil
}

// helpers for assertions

func (r *fakeRepository) transactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transactions)
}

func (r *fakeRepository) auditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audits)
}

func (r *fakeRepository) failNextCommit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitErr = err
}

var _ store.Repository = (*fakeRepository)(nil)

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// fixedRateLimiter returns a canned count for every call.
type fixedRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *fixedRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

var errLimiterDown = errors.New("limiter down")
