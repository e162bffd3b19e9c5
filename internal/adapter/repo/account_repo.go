package repo

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forge/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the ledger tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// AccountStorePG implements domain.AccountStore backed by PostgreSQL.
// Every balance mutation is a single conditional statement; two concurrent
// reservations against the same account are serialized by the row update,
// so the balance can never be observed negative.
type AccountStorePG struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStorePG.
func NewAccountStore(pool *pgxpool.Pool) *AccountStorePG {
	return &AccountStorePG{pool: pool}
}

// ReserveCredits atomically decrements the balance when it covers amount and
// records the matching debit transaction.
func (s *AccountStorePG) ReserveCredits(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE accounts
SET credits = credits - $2,
    total_spent = total_spent + $2,
    updated_at = NOW()
WHERE id = $1 AND credits >= $2
RETURNING credits;
`, accountID, amount)

	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, s.classifyReserveMiss(ctx, accountID)
		}
		return 0, err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO credit_transactions (id, account_id, request_id, delta, reason)
VALUES ($1, $2, $3, $4, $5);
`, uuid.NewString(), accountID, requestID, -amount, reason)
	if err != nil {
		return 0, fmt.Errorf("record debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return balance, nil
}

// CreditWithDedupe applies an increment at most once per dedupe key. The
// unique index on credit_transactions.dedupe_key is the cross-instance
// idempotency guard: the insert either claims the key or the whole operation
// is reported as a duplicate with the balance untouched.
func (s *AccountStorePG) CreditWithDedupe(ctx context.Context, accountID string, amount int64, dedupeKey, requestID, reason string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
INSERT INTO credit_transactions (id, account_id, request_id, dedupe_key, delta, reason)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING;
`, uuid.NewString(), accountID, requestID, dedupeKey, amount, reason)
	if err != nil {
		return 0, fmt.Errorf("record credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrDuplicateOperation
	}

	// Refunds restore spent credits; external grants count as earnings.
	increment := `
UPDATE accounts
SET credits = credits + $2,
    total_earned = total_earned + $2,
    updated_at = NOW()
WHERE id = $1
RETURNING credits;
`
	if requestID != "" {
		increment = `
UPDATE accounts
SET credits = credits + $2,
    total_spent = total_spent - $2,
    updated_at = NOW()
WHERE id = $1
RETURNING credits;
`
	}

	var balance int64
	if err := tx.QueryRow(ctx, increment, accountID, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit credit: %w", err)
	}
	return balance, nil
}

// Balance returns the current credit balance.
func (s *AccountStorePG) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT credits FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

// RecentTransactions lists the newest ledger rows for an account.
func (s *AccountStorePG) RecentTransactions(ctx context.Context, accountID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, account_id, request_id, COALESCE(dedupe_key, ''), delta, reason, created_at
FROM credit_transactions
WHERE account_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.RequestID, &t.DedupeKey, &t.Delta, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnsureAccount inserts an account row with a starting balance when absent.
func (s *AccountStorePG) EnsureAccount(ctx context.Context, accountID string, startingCredits int64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO accounts (id, credits, total_earned)
VALUES ($1, $2, $2)
ON CONFLICT (id) DO NOTHING;
`, accountID, startingCredits)
	return err
}

func (s *AccountStorePG) classifyReserveMiss(ctx context.Context, accountID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientCredits
}

var _ domain.AccountStore = (*AccountStorePG)(nil)
