package domain

import "time"

// Account represents a prepaid credit balance keyed by an opaque account
// reference (stable user id, wallet address, or email-derived hash).
type Account struct {
	ID          string
	Credits     int64
	TotalEarned int64
	TotalSpent  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreditTransaction is an append-only ledger row. The dedupe key doubles as
// the idempotency constraint: a transaction for a given key is applied at
// most once, enforced by the store rather than in-process state.
type CreditTransaction struct {
	ID        string
	AccountID string
	RequestID string
	DedupeKey string
	Delta     int64
	Reason    string
	CreatedAt time.Time
}
