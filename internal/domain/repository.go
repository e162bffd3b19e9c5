package domain

import (
	"context"
	"time"
)

// AccountStore defines the atomic balance operations the ledger requires.
// Implementations must make each call a single conditional update in the
// backing store; correctness under concurrent callers is delegated entirely
// to the store's atomicity, never to in-process locks.
type AccountStore interface {
	// ReserveCredits decrements the balance by amount only when the balance
	// covers it, returning the new balance or ErrInsufficientCredits. The
	// matching debit transaction is recorded in the same operation.
	ReserveCredits(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error)

	// CreditWithDedupe increments the balance by amount unless a transaction
	// with the same dedupe key already exists, in which case it returns
	// ErrDuplicateOperation and leaves the balance untouched.
	CreditWithDedupe(ctx context.Context, accountID string, amount int64, dedupeKey, requestID, reason string) (int64, error)

	// Balance returns the current credit balance.
	Balance(ctx context.Context, accountID string) (int64, error)

	// RecentTransactions lists the newest ledger rows for an account.
	RecentTransactions(ctx context.Context, accountID string, limit int) ([]CreditTransaction, error)
}

// ReservationStore persists in-flight reservations so a reconciliation sweep
// can resolve jobs that were still running when their polling ceiling hit.
type ReservationStore interface {
	Record(ctx context.Context, res *Reservation) error
	Settle(ctx context.Context, requestID, outcome string) error
	Get(ctx context.Context, requestID string) (*Reservation, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]Reservation, error)
}
