package handlers

import (
	"encoding/json"
	"net/http"

	"forge/internal/domain"
	"forge/internal/middleware"
)

type planExecuteRequest struct {
	Goal     string            `json:"goal,omitempty"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

type planExecuteResponse struct {
	Plan   *domain.Plan                `json:"plan"`
	Result *domain.PlanExecutionResult `json:"result"`
}

// PlanExecute builds a plan from a goal or a named template and runs its
// steps in order. Execution stops at the first step that does not complete.
func (a *App) PlanExecute(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountFromContext(r.Context())
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req planExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	var (
		plan *domain.Plan
		err  error
	)
	switch {
	case req.Template != "":
		plan, err = a.Plans.PlanFromTemplate(req.Template, req.Params)
	case req.Goal != "":
		plan, err = a.Plans.GeneratePlan(r.Context(), req.Goal)
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "goal or template required")
		return
	}
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result := a.Plans.ExecutePlan(r.Context(), accountID, plan)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	a.json(w, status, planExecuteResponse{Plan: plan, Result: result})
}
