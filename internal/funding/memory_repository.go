package funding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
)

type memoryRequestRepository struct {
	mu      sync.RWMutex
	storage map[string]Request
}

// NewMemoryRequestRepository constructs an in-memory request repository.
func NewMemoryRequestRepository() RequestRepository {
	return &memoryRequestRepository{storage: make(map[string]Request)}
}

func (r *memoryRequestRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[req.ID]; exists {
		return errors.New("request exists")
	}
	r.storage[req.ID] = req
	return nil
}

func (r *memoryRequestRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.storage[id]
	if !ok {
		return Request{}, fmt.Errorf("request %s: %w", id, ledger.ErrNotFound)
	}
	return req, nil
}

func (r *memoryRequestRepository) Update(_ context.Context, req Request) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.storage[req.ID]
	if !ok {
		return Request{}, fmt.Errorf("request %s: %w", req.ID, ledger.ErrNotFound)
	}
	if stored.Version != req.Version {
		return Request{}, infra.ErrVersionConflict
	}
	req.Version++
	req.UpdatedAt = time.Now().UTC()
	r.storage[req.ID] = req
	return req, nil
}

func (r *memoryRequestRepository) List(_ context.Context, filter RequestFilter) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Request
	for _, req := range r.storage {
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRequestRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, req := range r.storage {
		if req.UserID == userID {
			delete(r.storage, id)
			n++
		}
	}
	return n, nil
}

type memoryTransactionRepository struct {
	mu      sync.RWMutex
	storage map[txKey]Transaction
}

// txKey scopes client transaction ids to their owner.
type txKey struct {
	userID        string
	transactionID string
}

// NewMemoryTransactionRepository constructs an in-memory transaction repository.
func NewMemoryTransactionRepository() TransactionRepository {
	return &memoryTransactionRepository{storage: make(map[txKey]Transaction)}
}

func (r *memoryTransactionRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := txKey{userID: tx.UserID, transactionID: tx.TransactionID}
	if _, exists := r.storage[key]; exists {
		return fmt.Errorf("transaction %s: %w", tx.TransactionID, ledger.ErrDuplicateTransaction)
	}
	r.storage[key] = tx
	return nil
}

func (r *memoryTransactionRepository) GetByTransactionID(_ context.Context, userID, transactionID string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.storage[txKey{userID: userID, transactionID: transactionID}]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, ledger.ErrNotFound)
	}
	return tx, nil
}

func (r *memoryTransactionRepository) ListByUser(_ context.Context, userID string) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, tx := range r.storage {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryTransactionRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key := range r.storage {
		if key.userID == userID {
			delete(r.storage, key)
			n++
		}
	}
	return n, nil
}
