package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/logging"
	"github.com/rovobit/exchange/internal/metrics"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryRepository(), infra.NewMemoryTransactor(), metrics.New(), logging.Discard())
}

func TestServiceOpenAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	opened, err := svc.Open(ctx, "user-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Open(ctx, "user-1"); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected wallet exists, got %v", err)
	}
	fetched, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.ID != opened.ID || !fetched.SpotWallet.IsZero() {
		t.Fatalf("unexpected wallet: %+v", fetched)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceFailedMutationLeavesWalletUntouched(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Open(ctx, "user-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Credit(ctx, "user-1", Spot, d("10")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := svc.Apply(ctx, "user-1", func(w *Wallet) error {
		if err := w.Debit(Spot, d("10")); err != nil {
			return err
		}
		return w.AdjustHolding("BTC", d("-1"))
	})
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected insufficient holdings, got %v", err)
	}
	w, _ := svc.Get(ctx, "user-1")
	if !w.SpotWallet.Equal(d("10")) || len(w.WalletChangeHistory) != 1 {
		t.Fatalf("composite failure leaked state: %+v", w)
	}
}

func TestServiceConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Open(ctx, "user-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Credit(ctx, "user-1", Spot, d("100")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(ctx, "user-1", Spot, d("7")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	w, _ := svc.Get(ctx, "user-1")
	if succeeded != 14 {
		t.Fatalf("expected 14 successful debits, got %d", succeeded)
	}
	if !w.SpotWallet.Equal(d("2")) {
		t.Fatalf("expected remaining 2, got %s", w.SpotWallet)
	}
}

func TestServiceDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Open(ctx, "user-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestMemoryRepositoryDetectsStaleWrites(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	if err := repo.Create(ctx, Wallet{ID: "w", UserID: "u"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, _ := repo.GetByUser(ctx, "u")
	b, _ := repo.GetByUser(ctx, "u")
	if _, err := repo.Update(ctx, a); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if _, err := repo.Update(ctx, b); !errors.Is(err, infra.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}
