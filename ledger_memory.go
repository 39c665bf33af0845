package main

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memAccount struct {
	mu      sync.Mutex
	account LedgerAccount
}

// MemoryLedgerStore keeps balances in process. Each account has its own
// mutex and the pool has another; when both are needed the account lock is
// taken first.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount

	poolMu sync.Mutex
	pool   decimal.Decimal
}

func NewMemoryLedgerStore(pool decimal.Decimal) *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]*memAccount),
		pool:     pool,
	}
}

func (s *MemoryLedgerStore) lookup(id string) (*memAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryLedgerStore) Account(_ context.Context, id string) (LedgerAccount, error) {
	a, err := s.lookup(id)
	if err != nil {
		return LedgerAccount{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account, nil
}

func (s *MemoryLedgerStore) CreateAccount(_ context.Context, account LedgerAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return ErrAccountExists
	}
	now := time.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	s.accounts[account.ID] = &memAccount{account: account}
	return nil
}

// update runs fn with the account locked.
func (s *MemoryLedgerStore) update(id string, fn func(*LedgerAccount) error) error {
	a, err := s.lookup(id)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := fn(&a.account); err != nil {
		return err
	}
	a.account.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryLedgerStore) Hold(_ context.Context, id string, amount decimal.Decimal) error {
	return s.update(id, func(a *LedgerAccount) error {
		if a.Available().LessThan(amount) {
			return ErrInsufficientBalance
		}
		a.Held = a.Held.Add(amount)
		return nil
	})
}

func (s *MemoryLedgerStore) ReleaseHold(_ context.Context, id string, amount decimal.Decimal) error {
	return s.update(id, func(a *LedgerAccount) error {
		a.Held = decimal.Max(a.Held.Sub(amount), decimal.Zero)
		return nil
	})
}

func (s *MemoryLedgerStore) Capture(_ context.Context, id string, amount decimal.Decimal) error {
	return s.update(id, func(a *LedgerAccount) error {
		if a.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		a.Balance = a.Balance.Sub(amount)
		a.Held = decimal.Max(a.Held.Sub(amount), decimal.Zero)

		s.poolMu.Lock()
		s.pool = s.pool.Add(amount)
		s.poolMu.Unlock()
		return nil
	})
}

func (s *MemoryLedgerStore) Grant(_ context.Context, id string, amount decimal.Decimal) error {
	return s.update(id, func(a *LedgerAccount) error {
		s.poolMu.Lock()
		defer s.poolMu.Unlock()
		if s.pool.LessThan(amount) {
			return ErrInsufficientPool
		}
		s.pool = s.pool.Sub(amount)
		a.Balance = a.Balance.Add(amount)
		return nil
	})
}

func (s *MemoryLedgerStore) TopUpPool(_ context.Context, amount decimal.Decimal) error {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	s.pool = s.pool.Add(amount)
	return nil
}

func (s *MemoryLedgerStore) PoolBalance(context.Context) (decimal.Decimal, error) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.pool, nil
}
