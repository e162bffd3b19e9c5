package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"forge/internal/domain"
	"forge/internal/infra"
	"forge/internal/llm"
)

// LLMClient is the slice of the language-model client the planner needs.
type LLMClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const plannerSystemPrompt = `You plan multi-step content generation. Available job types: image, video, music, model3d.
Respond with JSON only: {"steps": [{"id": "<short-id>", "job_type": "<type>", "params": {"prompt": "..."}, "depends_on": "<earlier-id-or-empty>"}]}.
A step that consumes an earlier step's output must set depends_on and reference it in params as {{steps.<id>.output}}.
Keep plans short: at most 5 steps.`

// LLMPlanner asks the language-model collaborator for a step list.
type LLMPlanner struct {
	client LLMClient
	logger infra.Logger
}

// NewLLMPlanner creates a planner backed by the given client.
func NewLLMPlanner(client LLMClient, logger infra.Logger) *LLMPlanner {
	return &LLMPlanner{client: client, logger: logger}
}

// PlanSteps turns a goal into an ordered step list.
func (p *LLMPlanner) PlanSteps(ctx context.Context, goal string) ([]domain.Step, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("planner: goal is required")
	}
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		System:      plannerSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: goal}},
		Temperature: 0.3,
		MaxTokens:   1024,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	var parsed struct {
		Steps []domain.Step `json:"steps"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("planner: unparseable plan: %w", err)
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("planner: empty plan for goal %q", goal)
	}
	p.logger.Debug().Int("steps", len(parsed.Steps)).Msg("planner: plan generated")
	return parsed.Steps, nil
}

var _ Planner = (*LLMPlanner)(nil)
