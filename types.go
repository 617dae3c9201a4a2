package stride

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Verdict outcomes, in order of increasing intervention.
const (
	VerdictApproved = "APPROVED"
	VerdictModified = "MODIFIED"
	VerdictRejected = "REJECTED"
)

// Evidence is a scored passage retrieved from the coaching corpus.
// It is a curated view of the internal evidence type with no internal
// imports, safe to use from outside the module.
type Evidence struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"`
}

// Verdict is the safety decision attached to every returned artifact.
type Verdict struct {
	Outcome     string   `json:"outcome"` // APPROVED, MODIFIED, or REJECTED
	Rules       []string `json:"rules,omitempty"`
	Explanation string   `json:"explanation"`
}

// WorkflowResult is the outcome of one workflow execution. The artifact is
// kind-tagged JSON ("training_plan", "daily_workout", or "fallback") so
// callers can dispatch without guessing.
type WorkflowResult struct {
	Artifact json.RawMessage `json:"artifact"`
	Verdict  Verdict         `json:"verdict"`
	Evidence []Evidence      `json:"evidence"`
}

// PlanRequest describes the runner asking for a new training plan.
type PlanRequest struct {
	GoalRace      string    // e.g. "5k", "10k", "half marathon", "marathon"
	GoalDate      time.Time // race date
	WeeklyMileage float64   // current weekly volume in miles
	LongestRun    float64   // longest recent run in miles
	BaselinePace  float64   // easy pace in minutes per mile
	InjuryFlags   []string  // active conditions, e.g. "shin splints"
}

// AdjustRequest describes one day of an existing plan to adjust.
// PlanJSON is the plan as previously returned in a WorkflowResult artifact.
type AdjustRequest struct {
	PlanJSON      []byte
	Date          time.Time
	Fatigue       int // 0 (fresh) .. 10 (exhausted)
	TempF         float64
	Humidity      float64 // fraction, 0.0-1.0
	Condition     string  // clear, rain, heat, cold, or wind
	InjuryFlags   []string
	WeeklyMileage float64
}

// RunLogEntry is the public view of one audit entry. Nested domain documents
// (profile, context, evidence, verdict) are carried as raw JSON so external
// stores and consumers do not depend on internal model types.
type RunLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	Seq         int64           `json:"seq"` // store-assigned commit order
	Timestamp   time.Time       `json:"timestamp"`
	RequestKind string          `json:"request_kind"`
	Profile     json.RawMessage `json:"profile"`
	Context     json.RawMessage `json:"context,omitempty"` // nil for plan requests
	Evidence    json.RawMessage `json:"evidence"`
	RawOutput   []byte          `json:"raw_output,omitempty"`
	Verdict     json.RawMessage `json:"verdict"`
	Artifact    []byte          `json:"artifact"`
	ChainHash   string          `json:"chain_hash,omitempty"`
}

// SafetyRules holds every numeric threshold used by the guards and the
// adjuster. Zero values are not defaulted; start from DefaultSafetyRules()
// and override the fields you need.
type SafetyRules struct {
	OverloadCapPct  float64 // max week-over-week mileage increase, fraction
	LongRunFraction float64 // max single run as a fraction of week total
	LongRunCeiling  float64 // absolute single-run cap in miles

	MinEvidence    int     // qualifying passages required to accept an artifact
	RelevanceFloor float32 // passages below this score do not qualify

	RetrievalK int // top-K passages per retrieval call

	FatigueThreshold  int     // fatigue >= threshold triggers reduction
	HeatTempF         float64 // temperature above which pace is widened
	HumidityThreshold float64 // humidity fraction above which pace is widened
	FatigueReduction  float64 // distance reduction fraction under high fatigue
	PaceWiden         float64 // minutes per mile added to the slow bound in heat
}
