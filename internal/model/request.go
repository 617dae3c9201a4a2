package model

// RequestKind tags the workflow request union.
type RequestKind string

const (
	RequestGeneratePlan RequestKind = "GENERATE_PLAN"
	RequestAdjustToday  RequestKind = "ADJUST_TODAY"
)

// Request is the tagged union accepted by the workflow entry point.
// Exactly one payload matches the kind: GeneratePlan carries only the
// profile; AdjustToday additionally carries the existing plan and today's
// context. The router dispatches on Kind exhaustively; an unknown kind is
// an input fault, never a silent fallthrough.
type Request struct {
	Kind    RequestKind        `json:"kind"`
	Profile RunnerProfile      `json:"profile"`
	Plan    *TrainingPlan      `json:"plan,omitempty"`
	Context *AdjustmentContext `json:"context,omitempty"`
}

// WorkflowResult is the sole payload returned by the workflow entry point.
type WorkflowResult struct {
	Artifact Artifact      `json:"artifact"`
	Verdict  SafetyVerdict `json:"verdict"`
	Evidence []Evidence    `json:"evidence"`
}
