package rewards

import (
	"context"
	"sync"
	"time"

	"civicpulse/models"
)

// Ledger is the durable per-user credit store.
type Ledger interface {
	// Credit applies e once. Re-applying an entry with an already used key
	// returns applied=false and leaves the account unchanged.
	Credit(ctx context.Context, e Entry) (acct models.RewardAccount, applied bool, err error)
	// Account returns the owner's totals; a user with no credits yet gets a
	// zero account.
	Account(ctx context.Context, ownerID string) (models.RewardAccount, error)
}

// MemoryLedger is an in-process Ledger for development and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]models.RewardAccount
	applied  map[string]map[string]bool
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: map[string]models.RewardAccount{},
		applied:  map[string]map[string]bool{},
		now:      time.Now,
	}
}

func (m *MemoryLedger) Credit(ctx context.Context, e Entry) (models.RewardAccount, bool, error) {
	if err := e.Validate(); err != nil {
		return models.RewardAccount{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.applied[e.OwnerID]
	if keys == nil {
		keys = map[string]bool{}
		m.applied[e.OwnerID] = keys
	}
	if keys[e.Key] {
		return m.accountLocked(e.OwnerID), false, nil
	}
	keys[e.Key] = true

	acct := Apply(m.accounts[e.OwnerID], e)
	acct.UpdatedAt = m.now().UTC()
	m.accounts[e.OwnerID] = acct
	return copyAccount(acct), true, nil
}

func (m *MemoryLedger) Account(ctx context.Context, ownerID string) (models.RewardAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountLocked(ownerID), nil
}

func (m *MemoryLedger) accountLocked(ownerID string) models.RewardAccount {
	acct, ok := m.accounts[ownerID]
	if !ok {
		return models.RewardAccount{OwnerID: ownerID, Medals: []string{}}
	}
	return copyAccount(acct)
}

func copyAccount(a models.RewardAccount) models.RewardAccount {
	a.Medals = append([]string{}, a.Medals...)
	return a
}
