package domain

// Step is one unit of a plan: a single job of one type with parameters.
// DependsOn names an earlier step whose output artifact this step consumes.
type Step struct {
	ID        string            `json:"id"`
	JobType   JobType           `json:"job_type"`
	Params    map[string]string `json:"params"`
	DependsOn string            `json:"depends_on,omitempty"`
}

// Plan is an ordered list of steps intended to achieve a larger goal.
// Steps execute strictly in declared order.
type Plan struct {
	Goal  string `json:"goal,omitempty"`
	Steps []Step `json:"steps"`
}

// StepStatus enumerates per-step terminal outcomes within a plan run.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusTimedOut  StepStatus = "timed_out"
)

// StepResult captures the outcome of one executed plan step.
type StepResult struct {
	StepID    string     `json:"step_id"`
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Credits   int64      `json:"credits"`
}

// PlanExecutionResult aggregates a full plan run. Success is true only when
// every declared step completed; a failed step stops execution, so
// StepResults may be shorter than the plan.
type PlanExecutionResult struct {
	Success              bool         `json:"success"`
	StepResults          []StepResult `json:"step_results"`
	TotalCreditsReserved int64        `json:"total_credits_reserved"`
	TotalDurationMs      int64        `json:"total_duration_ms"`
}
