package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryTransactorRetriesConflicts(t *testing.T) {
	tr := NewMemoryTransactor()
	calls := 0
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestMemoryTransactorGivesUp(t *testing.T) {
	tr := NewMemoryTransactor()
	calls := 0
	err := tr.WithinTx(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrVersionConflict
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if calls != tr.attempts {
		t.Fatalf("expected %d attempts, got %d", tr.attempts, calls)
	}
}

func TestMemoryTransactorNestedAndSerialised(t *testing.T) {
	tr := NewMemoryTransactor()
	ctx := context.Background()

	if err := tr.WithinTx(ctx, func(ctx context.Context) error {
		return tr.WithinTx(ctx, func(context.Context) error { return nil })
	}); err != nil {
		t.Fatalf("nested tx: %v", err)
	}

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tr.WithinTx(ctx, func(context.Context) error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 serialised increments, got %d", counter)
	}
}
