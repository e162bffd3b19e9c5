package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forge/internal/domain"
	"forge/internal/infra"
)

// StepRunner executes one plan step as a single generation job.
type StepRunner interface {
	Generate(ctx context.Context, req GenerateRequest) (*Outcome, error)
}

// Planner turns a natural-language goal into an ordered step list.
type Planner interface {
	PlanSteps(ctx context.Context, goal string) ([]domain.Step, error)
}

// PlanOrchestrator builds plans from a goal or a named template and executes
// them strictly in order.
type PlanOrchestrator struct {
	runner    StepRunner
	planner   Planner
	templates *TemplateCatalog
	logger    infra.Logger
}

// NewPlanOrchestrator wires a PlanOrchestrator.
func NewPlanOrchestrator(runner StepRunner, planner Planner, templates *TemplateCatalog, logger infra.Logger) *PlanOrchestrator {
	return &PlanOrchestrator{runner: runner, planner: planner, templates: templates, logger: logger}
}

// GeneratePlan asks the planner collaborator for a step list achieving goal.
func (p *PlanOrchestrator) GeneratePlan(ctx context.Context, goal string) (*domain.Plan, error) {
	if p.planner == nil {
		return nil, fmt.Errorf("plan: no planner configured")
	}
	steps, err := p.planner.PlanSteps(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	plan := &domain.Plan{Goal: goal, Steps: steps}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanFromTemplate instantiates a named template with parameters.
func (p *PlanOrchestrator) PlanFromTemplate(name string, params map[string]string) (*domain.Plan, error) {
	if p.templates == nil {
		return nil, fmt.Errorf("plan: no template catalog configured")
	}
	plan, err := p.templates.Instantiate(name, params)
	if err != nil {
		return nil, err
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ExecutePlan runs steps sequentially in declared order. A later step may
// reference an earlier step's output URL, so there is no parallelism. The
// first step that does not complete stops the run: no further credits are
// spent downstream, and nothing already settled is rolled back.
func (p *PlanOrchestrator) ExecutePlan(ctx context.Context, accountID string, plan *domain.Plan) *domain.PlanExecutionResult {
	start := time.Now()
	result := &domain.PlanExecutionResult{Success: true}

	if err := validatePlan(plan); err != nil {
		result.Success = false
		result.StepResults = append(result.StepResults, domain.StepResult{Status: domain.StepStatusFailed, Error: err.Error()})
		result.TotalDurationMs = time.Since(start).Milliseconds()
		return result
	}

	outputs := make(map[string]string, len(plan.Steps))
	for _, step := range plan.Steps {
		params := resolveStepParams(step.Params, outputs)
		outcome, err := p.runner.Generate(ctx, GenerateRequest{
			AccountID: accountID,
			JobType:   step.JobType,
			Variant:   step.Params["variant"],
			Params:    params,
		})
		if err != nil {
			result.Success = false
			result.StepResults = append(result.StepResults, domain.StepResult{
				StepID: step.ID,
				Status: domain.StepStatusFailed,
				Error:  err.Error(),
			})
			break
		}

		result.TotalCreditsReserved += outcome.CreditsDeducted + outcome.CreditsRefunded

		switch {
		case outcome.Success:
			if len(outcome.Artifacts) > 0 {
				outputs[step.ID] = outcome.Artifacts[0].URL
			}
			result.StepResults = append(result.StepResults, domain.StepResult{
				StepID:    step.ID,
				Status:    domain.StepStatusCompleted,
				Artifacts: outcome.Artifacts,
				RequestID: outcome.RequestID,
				Credits:   outcome.CreditsDeducted,
			})
		case outcome.Pending:
			// A timed-out step has no output for dependents, so the plan
			// cannot continue; its reservation resolves out of band.
			result.Success = false
			result.StepResults = append(result.StepResults, domain.StepResult{
				StepID:    step.ID,
				Status:    domain.StepStatusTimedOut,
				Error:     outcome.Error,
				RequestID: outcome.RequestID,
				Credits:   outcome.CreditsDeducted,
			})
		default:
			result.Success = false
			result.StepResults = append(result.StepResults, domain.StepResult{
				StepID:    step.ID,
				Status:    domain.StepStatusFailed,
				Error:     outcome.Error,
				RequestID: outcome.RequestID,
			})
		}
		if !result.Success {
			p.logger.Info().Str("account", accountID).Str("step", step.ID).Msg("plan: stopping after non-completed step")
			break
		}
	}

	result.TotalDurationMs = time.Since(start).Milliseconds()
	return result
}

func validatePlan(plan *domain.Plan) error {
	if plan == nil || len(plan.Steps) == 0 {
		return fmt.Errorf("plan: no steps")
	}
	seen := make(map[string]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.ID == "" {
			return fmt.Errorf("plan: step %d has no id", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("plan: duplicate step id %q", step.ID)
		}
		if !domain.KnownJobType(step.JobType) {
			return fmt.Errorf("plan: step %q: %w: %q", step.ID, domain.ErrUnsupportedJobType, step.JobType)
		}
		if step.DependsOn != "" && !seen[step.DependsOn] {
			return fmt.Errorf("plan: step %q depends on %q which does not precede it", step.ID, step.DependsOn)
		}
		seen[step.ID] = true
	}
	return nil
}

// resolveStepParams substitutes {{steps.<id>.output}} references with the
// first artifact URL of the named earlier step.
func resolveStepParams(params map[string]string, outputs map[string]string) map[string]any {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		for stepID, url := range outputs {
			value = strings.ReplaceAll(value, "{{steps."+stepID+".output}}", url)
		}
		resolved[key] = value
	}
	return resolved
}
