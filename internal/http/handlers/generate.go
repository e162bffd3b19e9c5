package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"forge/internal/domain"
	"forge/internal/middleware"
	"forge/internal/orchestrator"
)

type generateRequest struct {
	JobType string         `json:"job_type"`
	Variant string         `json:"variant,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// Generate runs one generation job synchronously: reserve, submit, poll to a
// terminal state. A job that outlives the polling ceiling comes back 202 with
// the request id for later re-polling via JobStatus.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountFromContext(r.Context())
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	outcome, err := a.Generator.Generate(r.Context(), orchestrator.GenerateRequest{
		AccountID: accountID,
		JobType:   domain.JobType(req.JobType),
		Variant:   req.Variant,
		Params:    req.Params,
	})
	if err != nil {
		a.generateError(w, r, err)
		return
	}
	a.json(w, outcomeStatus(outcome), outcome)
}

func (a *App) generateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedJobType):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", a.localized(r, "insufficient_credits"))
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: generate failed")
		a.error(w, http.StatusInternalServerError, "internal", "generation failed")
	}
}

func outcomeStatus(o *orchestrator.Outcome) int {
	switch {
	case o.Pending:
		return http.StatusAccepted
	case o.Success:
		return http.StatusOK
	default:
		return http.StatusBadGateway
	}
}
