package app

import (
	"context"
	"testing"
	"time"
)

func TestFetchAllAccounts_PagesThroughTheWholeSet(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		seedAccount(t, svc, testOwner, "Account", 0)
	}

	accounts, counter, err := svc.FetchAllAccounts(ctx, testOwner, FlexQueryOptions{
		PageSize:  3,
		PageDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("FetchAllAccounts returned error: %v", err)
	}
	if len(accounts) != 7 {
		t.Fatalf("expected 7 accounts, got %d", len(accounts))
	}
	if counter.Current != 7 || counter.Total != 7 {
		t.Fatalf("unexpected counter %+v", counter)
	}

	// Paging must preserve display order across page boundaries.
	for i := 1; i < len(accounts); i++ {
		if accounts[i].Code.Less(accounts[i-1].Code) {
			t.Fatalf("accounts out of order at position %d", i)
		}
	}
}

func TestFetchAllAccounts_ExactPageBoundary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		seedAccount(t, svc, testOwner, "Account", 0)
	}

	accounts, _, err := svc.FetchAllAccounts(ctx, testOwner, FlexQueryOptions{
		PageSize:  3,
		PageDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("FetchAllAccounts returned error: %v", err)
	}
	if len(accounts) != 6 {
		t.Fatalf("expected 6 accounts with no duplicates, got %d", len(accounts))
	}
}

func TestFetchAllAccounts_EmptyOwner(t *testing.T) {
	svc, _, _ := newTestService()

	accounts, counter, err := svc.FetchAllAccounts(context.Background(), testOwner, FlexQueryOptions{})
	if err != nil {
		t.Fatalf("FetchAllAccounts returned error: %v", err)
	}
	if len(accounts) != 0 || counter.Total != 0 {
		t.Fatalf("expected empty result, got %d accounts", len(accounts))
	}
}

func TestFetchAllAccounts_CancelledContext(t *testing.T) {
	svc, _, _ := newTestService()

	for i := 0; i < 4; i++ {
		seedAccount(t, svc, testOwner, "Account", 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.FetchAllAccounts(ctx, testOwner, FlexQueryOptions{
		PageSize:  2,
		PageDelay: time.Second,
	})
	if err == nil {
		t.Fatal("expected context cancellation to surface")
	}
}
