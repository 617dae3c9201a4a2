// Package generation provides the generation port: structured training
// prescriptions produced by an external text-generation service.
//
// The port returns parsed domain structures plus the raw backend response
// so the run log can keep the unmodified output. A structurally invalid
// response is reported as an error here; the workflow decides whether to
// retry it.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/paceline-ai/stride/internal/model"
)

// Task selects the output shape requested from the backend.
type Task string

const (
	TaskPlan   Task = "plan"   // multi-week TrainingPlan
	TaskAdjust Task = "adjust" // single replacement DailyWorkout
)

// Prompt is the structured input to the generation port. The backend
// renders it into messages; grounding passages are always present because
// retrieval completes before generation for a given node.
type Prompt struct {
	Task     Task
	Profile  model.RunnerProfile
	Passages []model.Evidence

	// Plan task fields.
	Weeks     int       // plan horizon, already clamped by the planner
	StartDate time.Time // Monday of the first training week

	// Adjust task fields.
	Scheduled *model.DailyWorkout
	Context   *model.AdjustmentContext
	Guidance  string // adjustment directives derived from the context signals
}

// Output is the structured result of a generation call. Exactly one of
// Plan or Workout is set, matching the prompt's task. Raw carries the
// backend's unparsed response for the run log.
type Output struct {
	Plan    *model.TrainingPlan
	Workout *model.DailyWorkout
	Raw     []byte
}

// Generator is the generation port consumed by the workflow nodes.
// Implementations surface model.ErrGenerationTimeout on deadline expiry,
// which the workflow retries once, and model.ErrGenerationRefused when the
// backend declines to answer, which surfaces without a retry.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (Output, error)
}

// RenderMessages returns the system and user messages for a prompt. Exposed
// for Generator implementations that bring their own transport but reuse the
// standard prompt and output schema.
func RenderMessages(prompt Prompt) (system, user string) {
	return renderMessages(prompt)
}

// ParseOutput decodes a backend's raw JSON completion into the output
// structure for the prompt's task. Raw is always carried through so the run
// log keeps the unmodified response even when parsing fails.
func ParseOutput(prompt Prompt, raw []byte) (Output, error) {
	switch prompt.Task {
	case TaskPlan:
		plan, err := parsePlan(raw, prompt.Profile, prompt.StartDate)
		if err != nil {
			return Output{Raw: raw}, err
		}
		return Output{Plan: plan, Raw: raw}, nil
	case TaskAdjust:
		workout, err := parseWorkout(raw, prompt)
		if err != nil {
			return Output{Raw: raw}, err
		}
		return Output{Workout: workout, Raw: raw}, nil
	default:
		return Output{}, fmt.Errorf("generation: unknown task %q", prompt.Task)
	}
}
