package app

import (
	"context"
	"testing"
)

func TestReconcileAll_ProvisionsVaultForEveryOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	seedAccount(t, svc, "tenant-1", "Checking", 10000)
	seedAccount(t, svc, "tenant-2", "Savings", 500)

	if err := svc.ReconcileAll(ctx); err != nil {
		t.Fatalf("ReconcileAll returned error: %v", err)
	}

	for _, owner := range []string{"tenant-1", "tenant-2"} {
		vault, err := svc.GetVaultAccount(ctx, owner)
		if err != nil {
			t.Fatalf("GetVaultAccount(%s) returned error: %v", owner, err)
		}
		if vault == nil {
			t.Fatalf("expected vault provisioned for %s", owner)
		}
	}
}

func TestReconcileOwner_CleanLedgerPasses(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	account := seedAccount(t, svc, testOwner, "Checking", 10000)

	if err := svc.ReconcileOwner(ctx, testOwner); err != nil {
		t.Fatalf("ReconcileOwner returned error: %v", err)
	}

	sum, err := repo.SumTransactionDeltas(ctx, testOwner, account.Code)
	if err != nil {
		t.Fatalf("SumTransactionDeltas returned error: %v", err)
	}
	if sum != account.Balance {
		t.Fatalf("seeded ledger must balance: sum %d vs balance %d", sum, account.Balance)
	}
}
