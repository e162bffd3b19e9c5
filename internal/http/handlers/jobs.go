package handlers

import (
	"errors"
	"net/http"

	"forge/internal/domain"

	"github.com/go-chi/chi/v5"
)

// JobStatus re-polls a job that previously came back pending. A completed or
// failed run settles its reservation; a still-running job stays 202.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "request_id required")
		return
	}
	outcome, err := a.Generator.Resolve(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown request id")
			return
		}
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("handlers: resolve failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to resolve job")
		return
	}
	a.json(w, outcomeStatus(outcome), outcome)
}
