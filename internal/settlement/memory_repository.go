package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
)

type memoryTradeRepository struct {
	mu      sync.RWMutex
	storage map[string]Trade
}

// NewMemoryTradeRepository constructs an in-memory trade repository.
func NewMemoryTradeRepository() TradeRepository {
	return &memoryTradeRepository{storage: make(map[string]Trade)}
}

func (r *memoryTradeRepository) Create(_ context.Context, t Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[t.ID]; exists {
		return errors.New("trade exists")
	}
	r.storage[t.ID] = t
	return nil
}

func (r *memoryTradeRepository) Get(_ context.Context, id string) (Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.storage[id]
	if !ok {
		return Trade{}, fmt.Errorf("trade %s: %w", id, ledger.ErrNotFound)
	}
	return t, nil
}

func (r *memoryTradeRepository) Update(_ context.Context, t Trade) (Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.storage[t.ID]
	if !ok {
		return Trade{}, fmt.Errorf("trade %s: %w", t.ID, ledger.ErrNotFound)
	}
	if stored.Version != t.Version {
		return Trade{}, infra.ErrVersionConflict
	}
	t.Version++
	r.storage[t.ID] = t
	return t, nil
}

func (r *memoryTradeRepository) ListByUser(_ context.Context, userID string) ([]Trade, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Trade
	for _, t := range r.storage {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return out, nil
}

func (r *memoryTradeRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.storage {
		if t.UserID == userID {
			delete(r.storage, id)
			n++
		}
	}
	return n, nil
}

type memoryPositionRepository struct {
	mu      sync.RWMutex
	storage map[string]Position
}

// NewMemoryPositionRepository constructs an in-memory position repository.
func NewMemoryPositionRepository() PositionRepository {
	return &memoryPositionRepository{storage: make(map[string]Position)}
}

func (r *memoryPositionRepository) Create(_ context.Context, p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[p.ID]; exists {
		return errors.New("position exists")
	}
	r.storage[p.ID] = p
	return nil
}

func (r *memoryPositionRepository) Get(_ context.Context, id string) (Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Position{}, fmt.Errorf("position %s: %w", id, ledger.ErrNotFound)
	}
	return p, nil
}

func (r *memoryPositionRepository) Update(_ context.Context, p Position) (Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.storage[p.ID]
	if !ok {
		return Position{}, fmt.Errorf("position %s: %w", p.ID, ledger.ErrNotFound)
	}
	if stored.Version != p.Version {
		return Position{}, infra.ErrVersionConflict
	}
	p.Version++
	r.storage[p.ID] = p
	return p, nil
}

func (r *memoryPositionRepository) ListOpen(_ context.Context) ([]Position, error) {
	return r.filter(func(p Position) bool { return p.Status == PositionOpen }), nil
}

func (r *memoryPositionRepository) ListByUser(_ context.Context, userID string) ([]Position, error) {
	return r.filter(func(p Position) bool { return p.UserID == userID }), nil
}

func (r *memoryPositionRepository) filter(keep func(Position) bool) []Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Position
	for _, p := range r.storage {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (r *memoryPositionRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.storage {
		if p.UserID == userID {
			delete(r.storage, id)
			n++
		}
	}
	return n, nil
}
