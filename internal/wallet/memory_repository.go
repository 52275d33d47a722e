package wallet

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
	owners  map[int64]string
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet), owners: make(map[int64]string)}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return ErrExists
	}
	if _, exists := r.owners[wallet.OwnerID]; exists {
		return ErrExists
	}
	r.storage[wallet.ID] = wallet
	r.owners[wallet.OwnerID] = wallet.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) GetByOwner(ctx context.Context, ownerID int64) (Wallet, error) {
	r.mu.RLock()
	id, ok := r.owners[ownerID]
	r.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.Get(ctx, id)
}
