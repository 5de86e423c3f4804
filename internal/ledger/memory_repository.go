package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rovobit/exchange/internal/infra"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.UserID]; exists {
		return ErrWalletExists
	}
	r.storage[wallet.UserID] = wallet.Clone()
	return nil
}

func (r *memoryRepository) GetByUser(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[userID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
	}
	return wallet.Clone(), nil
}

func (r *memoryRepository) Update(_ context.Context, wallet Wallet) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.storage[wallet.UserID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet for user %s: %w", wallet.UserID, ErrNotFound)
	}
	if stored.Version != wallet.Version {
		return Wallet{}, infra.ErrVersionConflict
	}
	next := wallet.Clone()
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	r.storage[wallet.UserID] = next
	return next.Clone(), nil
}

func (r *memoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[userID]; !ok {
		return fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
	}
	delete(r.storage, userID)
	return nil
}
