package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"forge/internal/domain"
)

// MemStore is an in-memory domain.AccountStore. A single mutex stands in for
// the database's row-level atomicity, which keeps the conditional-update
// semantics identical to the PostgreSQL implementation. Used by tests and by
// components that need a store without a running database.
type MemStore struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions []domain.CreditTransaction
	dedupe       map[string]struct{}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		balances: make(map[string]int64),
		dedupe:   make(map[string]struct{}),
	}
}

// Seed sets an account balance directly.
func (m *MemStore) Seed(accountID string, credits int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = credits
}

// ReserveCredits implements the conditional decrement.
func (m *MemStore) ReserveCredits(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[accountID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if balance < amount {
		return 0, domain.ErrInsufficientCredits
	}
	m.balances[accountID] = balance - amount
	m.append(accountID, requestID, "", -amount, reason)
	return balance - amount, nil
}

// CreditWithDedupe implements the set-if-absent increment.
func (m *MemStore) CreditWithDedupe(ctx context.Context, accountID string, amount int64, dedupeKey, requestID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A failed grant must not consume the key; the unique index in the SQL
	// store rolls back with the transaction, so check the account first.
	if _, ok := m.balances[accountID]; !ok {
		return 0, domain.ErrNotFound
	}
	if dedupeKey != "" {
		if _, seen := m.dedupe[dedupeKey]; seen {
			return 0, domain.ErrDuplicateOperation
		}
		m.dedupe[dedupeKey] = struct{}{}
	}
	m.balances[accountID] += amount
	m.append(accountID, requestID, dedupeKey, amount, reason)
	return m.balances[accountID], nil
}

// Balance returns the current balance.
func (m *MemStore) Balance(ctx context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return balance, nil
}

// RecentTransactions lists ledger rows newest first.
func (m *MemStore) RecentTransactions(ctx context.Context, accountID string, limit int) ([]domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(m.transactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.transactions[i].AccountID == accountID {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

func (m *MemStore) append(accountID, requestID, dedupeKey string, delta int64, reason string) {
	m.transactions = append(m.transactions, domain.CreditTransaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		RequestID: requestID,
		DedupeKey: dedupeKey,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now(),
	})
}

var _ domain.AccountStore = (*MemStore)(nil)
