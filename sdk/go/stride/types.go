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

// Artifact kinds carried in a WorkflowResult.
const (
	ArtifactPlan     = "training_plan"
	ArtifactWorkout  = "daily_workout"
	ArtifactFallback = "fallback"
)

// Profile describes the runner asking for a plan.
type Profile struct {
	GoalRace      string    `json:"goal_race"` // e.g. "5k", "10k", "half marathon", "marathon"
	GoalDate      time.Time `json:"goal_date"`
	WeeklyMileage float64   `json:"weekly_mileage"`
	LongestRun    float64   `json:"longest_run,omitempty"`
	BaselinePace  float64   `json:"baseline_pace,omitempty"`
	InjuryFlags   []string  `json:"injury_flags,omitempty"`
}

// Weather is the day's conditions for an adjustment request.
type Weather struct {
	TempF     float64 `json:"temp_f"`
	Humidity  float64 `json:"humidity"` // fraction, 0.0-1.0
	Condition string  `json:"condition,omitempty"`
}

// DayContext is today's state for an adjustment request.
type DayContext struct {
	Date        time.Time `json:"date"`
	Fatigue     int       `json:"fatigue"` // 0 (fresh) .. 10 (exhausted)
	Weather     Weather   `json:"weather"`
	InjuryFlags []string  `json:"injury_flags,omitempty"`
}

// PaceRange is a target pace window in minutes per mile.
type PaceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DailyWorkout is one scheduled session.
type DailyWorkout struct {
	Date      time.Time `json:"date"`
	Day       string    `json:"day"`
	Type      string    `json:"type"` // rest, easy, long, tempo, interval, race
	Distance  float64   `json:"distance_mi"`
	Pace      PaceRange `json:"pace"`
	Rationale string    `json:"rationale,omitempty"`
}

// WeekPlan is one training week.
type WeekPlan struct {
	Index        int            `json:"index"`
	Phase        string         `json:"phase"` // base, build, peak, taper
	TotalMileage float64        `json:"total_mileage"`
	Days         []DailyWorkout `json:"days"`
}

// TrainingPlan is a full multi-week plan.
type TrainingPlan struct {
	GoalRace  string     `json:"goal_race"`
	GoalDate  time.Time  `json:"goal_date"`
	StartDate time.Time  `json:"start_date"`
	Weeks     []WeekPlan `json:"weeks"`
}

// Fallback is the conservative artifact substituted when generated content
// lacked sufficient grounding.
type Fallback struct {
	InsufficientGrounding bool         `json:"insufficient_grounding"`
	Reason                string       `json:"reason"`
	Placeholder           DailyWorkout `json:"placeholder"`
}

// Evidence is a scored passage that supported a prescription.
type Evidence struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"`
}

// Verdict is the safety decision attached to every artifact.
type Verdict struct {
	Outcome     string   `json:"outcome"`
	Rules       []string `json:"rules,omitempty"`
	Explanation string   `json:"explanation"`
}

// WorkflowResult is the outcome of one workflow execution. Artifact is the
// raw kind-tagged document; use Kind() and the typed accessors to decode it.
type WorkflowResult struct {
	Artifact json.RawMessage `json:"artifact"`
	Verdict  Verdict         `json:"verdict"`
	Evidence []Evidence      `json:"evidence"`
}

type artifactEnvelope struct {
	Kind     string          `json:"kind"`
	Artifact json.RawMessage `json:"artifact"`
}

// Kind returns the artifact kind tag, or "" if the artifact is missing or
// malformed.
func (r *WorkflowResult) Kind() string {
	var env artifactEnvelope
	if err := json.Unmarshal(r.Artifact, &env); err != nil {
		return ""
	}
	return env.Kind
}

// Plan decodes the artifact as a TrainingPlan. Returns false when the
// artifact is not a plan.
func (r *WorkflowResult) Plan() (*TrainingPlan, bool) {
	var env artifactEnvelope
	if err := json.Unmarshal(r.Artifact, &env); err != nil || env.Kind != ArtifactPlan {
		return nil, false
	}
	var plan TrainingPlan
	if err := json.Unmarshal(env.Artifact, &plan); err != nil {
		return nil, false
	}
	return &plan, true
}

// Workout decodes the artifact as a DailyWorkout. Returns false when the
// artifact is not a workout.
func (r *WorkflowResult) Workout() (*DailyWorkout, bool) {
	var env artifactEnvelope
	if err := json.Unmarshal(r.Artifact, &env); err != nil || env.Kind != ArtifactWorkout {
		return nil, false
	}
	var workout DailyWorkout
	if err := json.Unmarshal(env.Artifact, &workout); err != nil {
		return nil, false
	}
	return &workout, true
}

// RunLogEntry is one audit record from the append-only run log.
type RunLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	Seq         int64           `json:"seq"`
	Timestamp   time.Time       `json:"timestamp"`
	RequestKind string          `json:"request_kind"`
	Profile     Profile         `json:"profile"`
	Context     *DayContext     `json:"context,omitempty"`
	Evidence    []Evidence      `json:"evidence"`
	RawOutput   string          `json:"raw_output,omitempty"`
	Verdict     Verdict         `json:"verdict"`
	Artifact    json.RawMessage `json:"artifact"`
	ChainHash   string          `json:"chain_hash"`
}

// HealthResponse is the server's health report.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Retrieval string `json:"retrieval,omitempty"`
}
