package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"forge/internal/domain"
	"forge/internal/llm"
)

// scriptedRunner returns canned outcomes keyed by step prompt content.
type scriptedRunner struct {
	failOn   string // step fails when its prompt contains this substring
	requests []GenerateRequest
	seq      int
}

func (r *scriptedRunner) Generate(ctx context.Context, req GenerateRequest) (*Outcome, error) {
	r.requests = append(r.requests, req)
	r.seq++
	prompt, _ := req.Params["prompt"].(string)
	if r.failOn != "" && strings.Contains(prompt, r.failOn) {
		return &Outcome{Success: false, CreditsRefunded: domain.CostFor(req.JobType, req.Variant), Error: "provider failure"}, nil
	}
	cost := domain.CostFor(req.JobType, req.Variant)
	return &Outcome{
		Success:         true,
		RequestID:       fmt.Sprintf("req-%d", r.seq),
		Artifacts:       []domain.Artifact{{URL: fmt.Sprintf("https://cdn.example.com/%d.out", r.seq)}},
		CreditsDeducted: cost,
	}, nil
}

func newPlanOrchestrator(runner StepRunner) *PlanOrchestrator {
	return NewPlanOrchestrator(runner, nil, DefaultCatalog(), zerolog.New(io.Discard))
}

func threeStepPlan() *domain.Plan {
	return &domain.Plan{Steps: []domain.Step{
		{ID: "a", JobType: domain.JobTypeImage, Params: map[string]string{"prompt": "first"}},
		{ID: "b", JobType: domain.JobTypeImage, Params: map[string]string{"prompt": "second"}},
		{ID: "c", JobType: domain.JobTypeImage, Params: map[string]string{"prompt": "third"}},
	}}
}

func TestExecutePlanAllStepsComplete(t *testing.T) {
	runner := &scriptedRunner{}
	result := newPlanOrchestrator(runner).ExecutePlan(context.Background(), "acct", threeStepPlan())

	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if len(result.StepResults) != 3 {
		t.Fatalf("step results = %d, want 3", len(result.StepResults))
	}
	if result.TotalCreditsReserved != 9 {
		t.Fatalf("total reserved = %d, want 9 (3 images at 3)", result.TotalCreditsReserved)
	}
}

func TestExecutePlanShortCircuitsOnFailure(t *testing.T) {
	runner := &scriptedRunner{failOn: "second"}
	result := newPlanOrchestrator(runner).ExecutePlan(context.Background(), "acct", threeStepPlan())

	if result.Success {
		t.Fatal("expected success=false")
	}
	if len(result.StepResults) != 2 {
		t.Fatalf("step results = %d, want exactly 2 (step 3 never runs)", len(result.StepResults))
	}
	if result.StepResults[0].Status != domain.StepStatusCompleted {
		t.Fatalf("step 1 = %+v", result.StepResults[0])
	}
	if result.StepResults[1].Status != domain.StepStatusFailed {
		t.Fatalf("step 2 = %+v", result.StepResults[1])
	}
	if len(runner.requests) != 2 {
		t.Fatalf("runner calls = %d, want 2", len(runner.requests))
	}
}

func TestExecutePlanSubstitutesStepOutputs(t *testing.T) {
	runner := &scriptedRunner{}
	plan := &domain.Plan{Steps: []domain.Step{
		{ID: "hero", JobType: domain.JobTypeImage, Params: map[string]string{"prompt": "hero shot"}},
		{ID: "promo", JobType: domain.JobTypeVideo, DependsOn: "hero", Params: map[string]string{
			"prompt":     "animate it",
			"source_url": "{{steps.hero.output}}",
		}},
	}}
	result := newPlanOrchestrator(runner).ExecutePlan(context.Background(), "acct", plan)

	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	source := runner.requests[1].Params["source_url"]
	if source != "https://cdn.example.com/1.out" {
		t.Fatalf("source_url = %v, want first step's artifact", source)
	}
}

func TestExecutePlanRejectsForwardDependency(t *testing.T) {
	plan := &domain.Plan{Steps: []domain.Step{
		{ID: "a", JobType: domain.JobTypeImage, DependsOn: "b", Params: map[string]string{}},
		{ID: "b", JobType: domain.JobTypeImage, Params: map[string]string{}},
	}}
	result := newPlanOrchestrator(&scriptedRunner{}).ExecutePlan(context.Background(), "acct", plan)
	if result.Success {
		t.Fatal("expected validation failure")
	}
	if len(result.StepResults) != 1 || result.StepResults[0].Status != domain.StepStatusFailed {
		t.Fatalf("step results = %+v", result.StepResults)
	}
}

func TestPlanFromTemplate(t *testing.T) {
	p := newPlanOrchestrator(&scriptedRunner{})
	plan, err := p.PlanFromTemplate("product-launch", map[string]string{"product": "ceramic mug"})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(plan.Steps))
	}
	if got := plan.Steps[0].Params["prompt"]; !strings.Contains(got, "ceramic mug") {
		t.Fatalf("prompt = %q, want substituted product", got)
	}
	if got := plan.Steps[1].Params["source_url"]; got != "{{steps.hero.output}}" {
		t.Fatalf("source_url = %q, want step reference kept for execution", got)
	}
}

func TestPlanFromTemplateUnknownName(t *testing.T) {
	p := newPlanOrchestrator(&scriptedRunner{})
	if _, err := p.PlanFromTemplate("no-such-template", nil); err == nil {
		t.Fatal("expected error")
	}
}

type scriptedLLM struct {
	content string
	err     error
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func TestGeneratePlanParsesPlannerJSON(t *testing.T) {
	client := &scriptedLLM{content: `{"steps": [
		{"id": "track", "job_type": "music", "params": {"prompt": "upbeat jingle"}},
		{"id": "clip", "job_type": "video", "depends_on": "track", "params": {"prompt": "visualizer", "audio_url": "{{steps.track.output}}"}}
	]}`}
	p := NewPlanOrchestrator(&scriptedRunner{}, NewLLMPlanner(client, zerolog.New(io.Discard)), DefaultCatalog(), zerolog.New(io.Discard))

	plan, err := p.GeneratePlan(context.Background(), "make a jingle with a visualizer")
	if err != nil {
		t.Fatalf("generate plan: %v", err)
	}
	if len(plan.Steps) != 2 || plan.Steps[1].DependsOn != "track" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestGeneratePlanRejectsUnknownJobType(t *testing.T) {
	client := &scriptedLLM{content: `{"steps": [{"id": "x", "job_type": "hologram", "params": {}}]}`}
	p := NewPlanOrchestrator(&scriptedRunner{}, NewLLMPlanner(client, zerolog.New(io.Discard)), nil, zerolog.New(io.Discard))
	if _, err := p.GeneratePlan(context.Background(), "goal"); err == nil {
		t.Fatal("expected validation error")
	}
}
