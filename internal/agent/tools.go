package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"forge/internal/domain"
	"forge/internal/llm"
	"forge/internal/orchestrator"
)

// JobRunner executes one generation job.
type JobRunner interface {
	Generate(ctx context.Context, req orchestrator.GenerateRequest) (*orchestrator.Outcome, error)
}

// PlanService builds and executes multi-step plans.
type PlanService interface {
	GeneratePlan(ctx context.Context, goal string) (*domain.Plan, error)
	ExecutePlan(ctx context.Context, accountID string, plan *domain.Plan) *domain.PlanExecutionResult
}

const planTool = "plan_and_execute"

var jobTools = map[string]domain.JobType{
	"generate_image":   domain.JobTypeImage,
	"generate_video":   domain.JobTypeVideo,
	"generate_music":   domain.JobTypeMusic,
	"generate_model3d": domain.JobTypeModel3D,
}

var jobToolParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"prompt": {"type": "string", "description": "What to generate"},
		"variant": {"type": "string", "description": "Optional model variant, e.g. lowpoly or geometry for 3D"}
	},
	"required": ["prompt"]
}`)

var planToolParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"goal": {"type": "string", "description": "The larger goal to plan and execute as multiple generation steps"}
	},
	"required": ["goal"]
}`)

// Toolbox exposes every job type plus the plan meta-tool to the agent loop.
type Toolbox struct {
	runner JobRunner
	plans  PlanService
}

// NewToolbox wires a Toolbox.
func NewToolbox(runner JobRunner, plans PlanService) *Toolbox {
	return &Toolbox{runner: runner, plans: plans}
}

// Catalog lists the callable tools sent to the model on every iteration.
func (t *Toolbox) Catalog() []llm.Tool {
	tools := []llm.Tool{
		{Type: "function", Function: llm.ToolFunction{
			Name:        "generate_image",
			Description: "Generate an image from a text prompt. Costs credits.",
			Parameters:  jobToolParams,
		}},
		{Type: "function", Function: llm.ToolFunction{
			Name:        "generate_video",
			Description: "Generate a short video from a text prompt. Costs credits and can take minutes.",
			Parameters:  jobToolParams,
		}},
		{Type: "function", Function: llm.ToolFunction{
			Name:        "generate_music",
			Description: "Generate a short music track from a text prompt.",
			Parameters:  jobToolParams,
		}},
		{Type: "function", Function: llm.ToolFunction{
			Name:        "generate_model3d",
			Description: "Generate a 3D model from a text prompt. Variants: geometry, lowpoly, texture, sculpt.",
			Parameters:  jobToolParams,
		}},
		{Type: "function", Function: llm.ToolFunction{
			Name:        planTool,
			Description: "Plan a multi-step generation workflow for a larger goal and execute it step by step.",
			Parameters:  planToolParams,
		}},
	}
	return tools
}

// Execute runs one tool call on behalf of an account and returns the JSON
// result fed back to the model.
func (t *Toolbox) Execute(ctx context.Context, accountID string, call llm.ToolCall) (string, error) {
	name := call.Function.Name
	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "", fmt.Errorf("tool %s: bad arguments: %w", name, err)
		}
	}

	if name == planTool {
		goal, _ := args["goal"].(string)
		plan, err := t.plans.GeneratePlan(ctx, goal)
		if err != nil {
			return "", fmt.Errorf("tool %s: %w", name, err)
		}
		result := t.plans.ExecutePlan(ctx, accountID, plan)
		return marshalResult(result)
	}

	jobType, ok := jobTools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	variant, _ := args["variant"].(string)
	outcome, err := t.runner.Generate(ctx, orchestrator.GenerateRequest{
		AccountID: accountID,
		JobType:   jobType,
		Variant:   variant,
		Params:    args,
	})
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	if !outcome.Success && !outcome.Pending {
		return "", fmt.Errorf("tool %s: %s (credits refunded: %d)", name, outcome.Error, outcome.CreditsRefunded)
	}
	return marshalResult(outcome)
}

func marshalResult(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(raw), nil
}
