package accounts

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDirectory is an in-memory Directory for tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[int64]Account
}

// NewMemoryDirectory creates a directory preloaded with the given accounts.
func NewMemoryDirectory(accounts ...Account) *MemoryDirectory {
	d := &MemoryDirectory{accounts: make(map[int64]Account, len(accounts))}
	for _, a := range accounts {
		d.accounts[a.ID] = a
	}
	return d
}

// Put adds or replaces an account.
func (d *MemoryDirectory) Put(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[a.ID] = a
}

// Account implements Directory.
func (d *MemoryDirectory) Account(ctx context.Context, id int64) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %d", id)
	}
	return &a, nil
}

// ListByPlatform implements Directory.
func (d *MemoryDirectory) ListByPlatform(ctx context.Context, platform Platform) ([]Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Account
	for _, a := range d.accounts {
		if a.Platform == platform {
			out = append(out, a)
		}
	}
	return out, nil
}
