/**
 * @description
 * This file implements the nightly reconciliation job. For every owner known
 * to the store it ensures the default vault account exists, then compares
 * each account's stored balance against the net sum of its transaction-log
 * deltas. Drift is logged for operator follow-up; the job never rewrites
 * balances on its own.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron scheduling.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/storemax/ledger-service/internal/domain"
)

const reconcileRunTimeout = 10 * time.Minute

// Reconciler runs the scheduled balance audit.
type Reconciler struct {
	service  *Service
	schedule string
	cron     *cron.Cron
}

// NewReconciler creates a reconciler with the given cron schedule spec.
func NewReconciler(service *Service, schedule string) *Reconciler {
	return &Reconciler{
		service:  service,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

// Start registers the job and starts the scheduler.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	log.Printf("level=info component=reconciler msg=\"scheduled balance audit\" schedule=%q", r.schedule)
	return nil
}

// Stop stops the scheduler and returns a context that is done once any
// running job has finished.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reconciler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileRunTimeout)
	defer cancel()

	if err := r.service.ReconcileAll(ctx); err != nil {
		log.Printf("level=error component=reconciler msg=\"balance audit run failed\" err=%v", err)
	}
}

// ReconcileAll audits every owner. Per-owner failures are logged and do not
// stop the sweep.
func (s *Service) ReconcileAll(ctx context.Context) error {
	owners, err := s.repo.ListOwners(ctx)
	if err != nil {
		return err
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ReconcileOwner(ctx, owner); err != nil {
			log.Printf("level=error component=reconciler msg=\"owner audit failed\" owner=%s err=%v", owner, err)
		}
	}
	log.Printf("level=info component=reconciler msg=\"balance audit complete\" owners=%d", len(owners))
	return nil
}

// ReconcileOwner ensures the owner's vault account exists and checks every
// account balance against its transaction-log sum.
func (s *Service) ReconcileOwner(ctx context.Context, owner string) error {
	if err := s.EnsureDefaultVaultAccount(ctx, owner); err != nil {
		log.Printf("level=warn component=reconciler msg=\"vault check failed\" owner=%s err=%v", owner, err)
	}

	accounts, _, err := s.FetchAllAccounts(ctx, owner, FlexQueryOptions{})
	if err != nil {
		return err
	}

	for _, account := range accounts {
		sum, err := s.repo.SumTransactionDeltas(ctx, owner, account.Code)
		if err != nil {
			log.Printf("level=warn component=reconciler msg=\"delta sum failed\" owner=%s code=%s err=%v", owner, account.Code, err)
			continue
		}
		if sum != account.Balance {
			log.Printf("level=error component=reconciler msg=\"balance drift detected\" owner=%s code=%s balance=%s ledger_sum=%s",
				owner, account.Code, domain.FormatAmount(account.Balance), domain.FormatAmount(sum))
		}
	}
	return nil
}
