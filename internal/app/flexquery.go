/**
 * @description
 * This file implements the flex query path: a one-shot full read of an
 * owner's accounts that pages through the store in fixed-size batches,
 * pausing briefly between pages so large tenants do not monopolize the
 * connection pool. It complements the live view, which serves incremental
 * updates; the flex path is what list endpoints and exports use.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/storemax/ledger-service/internal/domain"
	"github.com/storemax/ledger-service/internal/store"
)

const (
	defaultFlexPageSize  = 500
	defaultFlexPageDelay = 50 * time.Millisecond
)

// FlexQueryOptions tunes the pager. Zero values fall back to the service-wide
// defaults, then to the package defaults.
type FlexQueryOptions struct {
	PageSize  int
	PageDelay time.Duration
}

// SetFlexQueryDefaults installs the service-wide pager defaults.
func (s *Service) SetFlexQueryDefaults(opts FlexQueryOptions) {
	s.flexDefaults = opts
}

// FetchAllAccounts reads every account for the owner, page by page, and
// returns them in display order together with the counter pair.
func (s *Service) FetchAllAccounts(ctx context.Context, owner string, opts FlexQueryOptions) ([]domain.BankAccount, domain.AccountCounter, error) {
	if owner == "" {
		return nil, domain.AccountCounter{}, ErrOwnerRequired
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = s.flexDefaults.PageSize
	}
	if pageSize <= 0 {
		pageSize = defaultFlexPageSize
	}
	pageDelay := opts.PageDelay
	if pageDelay <= 0 {
		pageDelay = s.flexDefaults.PageDelay
	}
	if pageDelay <= 0 {
		pageDelay = defaultFlexPageDelay
	}

	var all []domain.BankAccount
	for offset := 0; ; offset += pageSize {
		page, err := s.repo.ListAccounts(ctx, owner, store.ListOptions{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, domain.AccountCounter{}, fmt.Errorf("failed to list accounts page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		select {
		case <-time.After(pageDelay):
		case <-ctx.Done():
			return nil, domain.AccountCounter{}, ctx.Err()
		}
	}

	counter := domain.AccountCounter{Current: len(all), Total: len(all)}
	return all, counter, nil
}
