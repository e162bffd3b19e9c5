package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"forge/internal/agent"
	"forge/internal/llm"
	"forge/internal/middleware"
)

type agentRequest struct {
	Message       string        `json:"message"`
	History       []llm.Message `json:"history,omitempty"`
	Autonomous    *bool         `json:"autonomous,omitempty"`
	MaxIterations int           `json:"max_iterations,omitempty"`
}

// AgentMessage runs one agent turn. With Accept: text/event-stream the loop's
// progress is delivered as named SSE events (step, thinking, tool_calls,
// tool_result, response); otherwise the final result comes back as one JSON
// body.
func (a *App) AgentMessage(w http.ResponseWriter, r *http.Request) {
	if a.Agent == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "agent is not configured")
		return
	}
	accountID := middleware.AccountFromContext(r.Context())
	if accountID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", a.localized(r, "unauthorized"))
		return
	}
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "message required")
		return
	}
	autonomous := true
	if req.Autonomous != nil {
		autonomous = *req.Autonomous
	}
	loopReq := agent.Request{
		AccountID:     accountID,
		Message:       req.Message,
		History:       req.History,
		Autonomous:    autonomous,
		MaxIterations: req.MaxIterations,
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		a.agentStream(w, r, loopReq)
		return
	}

	result, err := a.Agent.Run(r.Context(), loopReq, nil)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: agent turn failed")
		a.error(w, http.StatusBadGateway, "upstream", "agent turn failed")
		return
	}
	a.json(w, http.StatusOK, result)
}

func (a *App) agentStream(w http.ResponseWriter, r *http.Request, req agent.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	emit := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	events := &agent.Events{
		OnStep: func(iteration int) {
			emit("step", map[string]int{"iteration": iteration})
		},
		OnThinking: func(content string) {
			emit("thinking", map[string]string{"content": content})
		},
		OnToolCalls: func(calls []llm.ToolCall) {
			names := make([]string, 0, len(calls))
			for _, c := range calls {
				names = append(names, c.Function.Name)
			}
			emit("tool_calls", map[string]any{"tools": names})
		},
		OnToolResult: func(name, result string) {
			emit("tool_result", map[string]string{"name": name, "result": result})
		},
		OnResponse: func(content string) {
			emit("response", map[string]string{"content": content})
		},
	}

	result, err := a.Agent.Run(r.Context(), req, events)
	if err != nil {
		emit("error", map[string]string{"message": "agent turn failed"})
		return
	}
	emit("done", result)
}
