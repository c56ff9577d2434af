package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for testing and
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acct.Name]; exists {
		return ErrAccountExists
	}
	r.accounts[acct.Name] = acct
	return nil
}

func (r *memoryRepository) FindByName(_ context.Context, name string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[name]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, name string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[name]
	if !ok {
		return ErrAccountNotFound
	}
	acct.TokenVersion = version
	r.accounts[name] = acct
	return nil
}
