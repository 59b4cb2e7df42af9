package services

import (
	"context"
	"sync"

	core "homefi-backend/core/project"
)

// ErrInsufficientFunds is returned when a custody movement cannot be
// covered.
var ErrInsufficientFunds = core.Err("insufficient funds")

// MemoryVault is an in-process token custodian for development and tests.
// It tracks external account balances per token alongside the custody
// pool.
type MemoryVault struct {
	mu       sync.Mutex
	custody  map[core.Address]int64
	accounts map[core.Address]map[core.Address]int64
}

// NewMemoryVault returns an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		custody:  make(map[core.Address]int64),
		accounts: make(map[core.Address]map[core.Address]int64),
	}
}

// Credit seeds an external account balance.
func (v *MemoryVault) Credit(token, account core.Address, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.accounts[token] == nil {
		v.accounts[token] = make(map[core.Address]int64)
	}
	v.accounts[token][account] += amount
}

// AccountBalance reports an external account balance.
func (v *MemoryVault) AccountBalance(token, account core.Address) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accounts[token][account]
}

// Pull moves funds from an external account into custody.
func (v *MemoryVault) Pull(_ context.Context, token, from core.Address, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.accounts[token][from] < amount {
		return ErrInsufficientFunds
	}
	v.accounts[token][from] -= amount
	v.custody[token] += amount
	return nil
}

// Push pays custody funds out to an external account.
func (v *MemoryVault) Push(_ context.Context, token, to core.Address, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.custody[token] < amount {
		return ErrInsufficientFunds
	}
	v.custody[token] -= amount
	if v.accounts[token] == nil {
		v.accounts[token] = make(map[core.Address]int64)
	}
	v.accounts[token][to] += amount
	return nil
}

// Balance reports the custody balance for a token.
func (v *MemoryVault) Balance(_ context.Context, token core.Address) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.custody[token], nil
}
