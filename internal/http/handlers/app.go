package handlers

import (
	"encoding/json"
	"net/http"

	"forge/internal/agent"
	"forge/internal/domain"
	"forge/internal/infra"
	"forge/internal/ledger"
	"forge/internal/orchestrator"
)

// App carries the wired services every handler needs.
type App struct {
	Logger    infra.Logger
	Ledger    *ledger.Ledger
	Accounts  domain.AccountStore
	Generator *orchestrator.Generator
	Plans     *orchestrator.PlanOrchestrator
	Agent     *agent.Loop
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]string{"error": code, "message": msg})
}
