package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"forge/internal/domain"

	"github.com/go-chi/chi/v5"
)

type creditGrantRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	DedupeKey string `json:"dedupe_key"`
	Reason    string `json:"reason,omitempty"`
}

// CreditGrant tops up an account. The caller supplies the dedupe key, so a
// replayed payment webhook credits at most once and the replay gets 200 with
// the unchanged balance.
func (a *App) CreditGrant(w http.ResponseWriter, r *http.Request) {
	var req creditGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.AccountID == "" || req.Amount <= 0 || req.DedupeKey == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "account_id, positive amount and dedupe_key required")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "grant"
	}
	balance, err := a.Ledger.Credit(r.Context(), req.AccountID, req.Amount, req.DedupeKey, reason)
	duplicate := false
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateOperation):
			duplicate = true
			balance, err = a.Ledger.Balance(r.Context(), req.AccountID)
			if err != nil {
				a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
				return
			}
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "unknown account")
			return
		default:
			a.Logger.Error().Err(err).Str("account_id", req.AccountID).Msg("handlers: credit grant failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to credit account")
			return
		}
	}
	a.json(w, http.StatusOK, map[string]any{
		"balance":   balance,
		"duplicate": duplicate,
	})
}

// Balance reports the current credit balance for an account.
func (a *App) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "account_id required")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown account")
			return
		}
		a.Logger.Error().Err(err).Str("account_id", accountID).Msg("handlers: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"account_id": accountID, "balance": balance})
}

// Transactions lists the newest ledger rows for an account.
func (a *App) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "account_id required")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	txns, err := a.Accounts.RecentTransactions(r.Context(), accountID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("account_id", accountID).Msg("handlers: transaction listing failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load transactions")
		return
	}
	rows := make([]map[string]any, 0, len(txns))
	for _, tx := range txns {
		rows = append(rows, map[string]any{
			"id":         tx.ID,
			"request_id": tx.RequestID,
			"delta":      tx.Delta,
			"reason":     tx.Reason,
			"created_at": tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"account_id": accountID, "transactions": rows})
}
