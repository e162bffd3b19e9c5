// Package ledger guards the prepaid credit balance. All mutations go through
// the store's atomic conditional updates; the service layer adds refund
// idempotency keys and observability, never its own locking.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forge/internal/domain"
	"forge/internal/infra"
)

// Ledger exposes reserve/refund/credit operations over an account store.
type Ledger struct {
	store  domain.AccountStore
	logger infra.Logger
}

// New creates a Ledger.
func New(store domain.AccountStore, logger infra.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Reserve withholds amount from the account for one job. It either fully
// succeeds, returning the new balance, or fails with
// domain.ErrInsufficientCredits with the balance untouched.
func (l *Ledger) Reserve(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: reserve amount must be positive, got %d", amount)
	}
	balance, err := l.store.ReserveCredits(ctx, accountID, amount, requestID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			l.logger.Info().Str("account", accountID).Int64("amount", amount).Msg("ledger: reservation rejected")
		}
		return 0, err
	}
	l.logger.Debug().Str("account", accountID).Int64("amount", amount).Int64("balance", balance).Msg("ledger: reserved")
	return balance, nil
}

// Refund returns a reservation to the account. The refund is keyed by the
// provider request id, so replaying it for the same failed job never
// double-credits: the duplicate is absorbed and the current balance returned.
func (l *Ledger) Refund(ctx context.Context, accountID string, amount int64, requestID, reason string) (int64, error) {
	if requestID == "" {
		return 0, fmt.Errorf("ledger: refund requires a request id")
	}
	balance, err := l.store.CreditWithDedupe(ctx, accountID, amount, refundDedupeKey(requestID), requestID, reason)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			l.logger.Warn().Str("account", accountID).Str("request_id", requestID).Msg("ledger: refund replay ignored")
			return l.store.Balance(ctx, accountID)
		}
		return 0, err
	}
	l.logger.Info().Str("account", accountID).Int64("amount", amount).Str("reason", reason).Msg("ledger: refunded")
	return balance, nil
}

// Credit applies an externally triggered grant (payment, holder bonus). The
// caller-supplied dedupe key makes webhook replays harmless; a duplicate is
// surfaced as domain.ErrDuplicateOperation so the caller can acknowledge it.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount int64, dedupeKey, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: credit amount must be positive, got %d", amount)
	}
	if strings.TrimSpace(dedupeKey) == "" {
		return 0, fmt.Errorf("ledger: credit requires a dedupe key")
	}
	balance, err := l.store.CreditWithDedupe(ctx, accountID, amount, dedupeKey, "", reason)
	if err != nil {
		return 0, err
	}
	l.logger.Info().Str("account", accountID).Int64("amount", amount).Str("reason", reason).Msg("ledger: credited")
	return balance, nil
}

// Balance returns the current balance.
func (l *Ledger) Balance(ctx context.Context, accountID string) (int64, error) {
	return l.store.Balance(ctx, accountID)
}

func refundDedupeKey(requestID string) string {
	return "refund:" + requestID
}
