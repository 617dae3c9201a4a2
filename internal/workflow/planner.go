package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/model"
)

// Plan horizons outside this range produce plans that are either too short
// to periodize or too long to stay relevant, so the horizon is clamped.
const (
	minPlanWeeks = 4
	maxPlanWeeks = 24
)

// Planner generates a full multi-week training plan grounded in retrieved
// corpus passages.
type Planner struct {
	ports  Ports
	rules  config.Rules
	logger *slog.Logger
	now    func() time.Time
}

// NewPlanner creates a Planner over the given ports and rule thresholds.
func NewPlanner(ports Ports, rules config.Rules, logger *slog.Logger) *Planner {
	return &Planner{ports: ports.withDefaults(), rules: rules, logger: logger, now: time.Now}
}

// Plan builds the retrieval query, fetches top-K grounding passages, and
// generates the plan. A structurally invalid plan is treated as a
// generation fault: regenerated once with identical inputs, then surfaced
// as ErrPlanGenerationFailed. Returns the plan, its supporting evidence,
// and the raw generator output for the run log.
func (p *Planner) Plan(ctx context.Context, profile model.RunnerProfile) (*model.TrainingPlan, []model.Evidence, []byte, error) {
	start := nextMonday(p.now().UTC())
	weeks := clampWeeks(weeksUntil(start, profile.GoalDate))

	query := planQuery(profile, weeks)
	evidence, err := retryTransient(ctx, p.logger, "retrieval", func(ctx context.Context) ([]model.Evidence, error) {
		sctx, cancel := context.WithTimeout(ctx, p.ports.RetrievalTimeout)
		defer cancel()
		return p.ports.Retriever.Search(sctx, query, model.DomainPlans, p.rules.RetrievalK)
	})
	if err != nil {
		return nil, nil, nil, err
	}

	prompt := generation.Prompt{
		Task:      generation.TaskPlan,
		Profile:   profile,
		Passages:  evidence,
		Weeks:     weeks,
		StartDate: start,
	}

	var lastFault error
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := retryTransient(ctx, p.logger, "generation", func(ctx context.Context) (generation.Output, error) {
			gctx, cancel := context.WithTimeout(ctx, p.ports.GenerationTimeout)
			defer cancel()
			return p.ports.Generator.Generate(gctx, prompt)
		})
		if err != nil {
			if transient(err) || errors.Is(err, model.ErrGenerationRefused) || ctx.Err() != nil {
				// Transient faults were already retried once inside
				// retryTransient; refusals are final for these inputs.
				return nil, nil, nil, err
			}
			lastFault = err
		} else if out.Plan == nil {
			lastFault = fmt.Errorf("generator returned no plan")
		} else if verr := out.Plan.Validate(); verr != nil {
			lastFault = verr
		} else {
			return out.Plan, evidence, out.Raw, nil
		}
		p.logger.Warn("planner: structurally invalid plan", "attempt", attempt, "error", lastFault)
	}

	return nil, nil, nil, fmt.Errorf("%w: %v", model.ErrPlanGenerationFailed, lastFault)
}

// planQuery summarizes the profile into a corpus search query.
func planQuery(profile model.RunnerProfile, weeks int) string {
	q := fmt.Sprintf("%d-week %s training plan for a runner averaging %.0f miles per week, longest recent run %.0f miles",
		weeks, profile.GoalRace, profile.WeeklyMileage, profile.LongestRun)
	if profile.Injured() {
		q += ", returning from injury"
	}
	return q
}

// weeksUntil returns the number of whole training weeks between start and
// the goal date.
func weeksUntil(start, goal time.Time) int {
	days := int(goal.Sub(start).Hours() / 24)
	return days / 7
}

func clampWeeks(w int) int {
	if w < minPlanWeeks {
		return minPlanWeeks
	}
	if w > maxPlanWeeks {
		return maxPlanWeeks
	}
	return w
}

// nextMonday returns the Monday on or after t, at midnight UTC.
func nextMonday(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}
