package guard

import (
	"fmt"
	"log/slog"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/model"
)

// HallucinationGuard enforces the minimum-evidence policy: a generated
// artifact is accepted only if enough retrieved passages above the
// relevance floor support it. It runs strictly before safety validation so
// ungrounded output never reaches the safety guard as if it were
// trustworthy.
type HallucinationGuard struct {
	minEvidence int
	floor       float32
	logger      *slog.Logger
}

// NewHallucination creates a HallucinationGuard from the configured rules.
func NewHallucination(rules config.Rules, logger *slog.Logger) *HallucinationGuard {
	return &HallucinationGuard{
		minEvidence: rules.MinEvidence,
		floor:       rules.RelevanceFloor,
		logger:      logger,
	}
}

// Check returns the artifact unchanged when grounding is sufficient, or a
// Fallback carrying the insufficient-grounding flag otherwise. A Fallback
// that is already the artifact (e.g. from an earlier stage) passes through
// untouched; there is nothing left to ground.
func (g *HallucinationGuard) Check(artifact model.Artifact, evidence []model.Evidence) model.Artifact {
	if _, ok := artifact.(*model.Fallback); ok {
		return artifact
	}

	qualifying := 0
	for _, e := range evidence {
		if e.Score > g.floor {
			qualifying++
		}
	}
	if qualifying >= g.minEvidence {
		return artifact
	}

	g.logger.Warn("hallucination guard: insufficient grounding, substituting fallback",
		"qualifying", qualifying, "required", g.minEvidence, "floor", g.floor)

	return &model.Fallback{
		InsufficientGrounding: true,
		Reason: fmt.Sprintf("only %d of the required %d passages scored above the relevance floor %.2f; the generated output cannot be trusted",
			qualifying, g.minEvidence, g.floor),
		Placeholder: model.DailyWorkout{
			Type:      model.WorkoutEasy,
			Distance:  3,
			Rationale: "Conservative easy session substituted: the reference corpus did not provide enough supporting material for a specific prescription.",
		},
	}
}
