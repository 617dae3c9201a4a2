package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/model"
)

// HydrationNote is appended to the rationale whenever heat or humidity
// triggers a pace adjustment.
const HydrationNote = "Hydrate before and during the run; carry fluids and consider electrolytes in sustained heat."

// Adjuster produces a replacement for today's scheduled session based on
// fatigue, weather, and injury signals. It never mutates the underlying
// plan; the returned workout is a proposal for the guards to validate.
type Adjuster struct {
	ports  Ports
	rules  config.Rules
	logger *slog.Logger
}

// NewAdjuster creates an Adjuster over the given ports and rule thresholds.
func NewAdjuster(ports Ports, rules config.Rules, logger *slog.Logger) *Adjuster {
	return &Adjuster{ports: ports.withDefaults(), rules: rules, logger: logger}
}

// Adjust locates today's scheduled workout, retrieves adjustment guidance,
// and generates a replacement. The scaling heuristics are enforced
// deterministically on whatever the generator proposes: injury flags
// dominate all other signals, high fatigue bounds the distance, and heat
// widens the pace window. If the generator cannot produce a usable proposal
// the heuristics alone build the replacement; adjustment never fails on
// generation quality.
func (a *Adjuster) Adjust(ctx context.Context, profile model.RunnerProfile, plan *model.TrainingPlan, actx model.AdjustmentContext) (*model.DailyWorkout, []model.Evidence, []byte, error) {
	scheduled, ok := plan.WorkoutOn(actx.Date)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", model.ErrDateOutOfPlanRange, actx.Date.Format("2006-01-02"))
	}

	query, domain := a.adjustQuery(scheduled, actx, profile)
	evidence, err := retryTransient(ctx, a.logger, "retrieval", func(ctx context.Context) ([]model.Evidence, error) {
		sctx, cancel := context.WithTimeout(ctx, a.ports.RetrievalTimeout)
		defer cancel()
		return a.ports.Retriever.Search(sctx, query, domain, a.rules.RetrievalK)
	})
	if err != nil {
		return nil, nil, nil, err
	}

	prompt := generation.Prompt{
		Task:      generation.TaskAdjust,
		Profile:   profile,
		Passages:  evidence,
		Scheduled: &scheduled,
		Context:   &actx,
		Guidance:  strings.Join(a.directives(scheduled, actx, profile), " "),
	}

	var proposal *model.DailyWorkout
	var raw []byte
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := retryTransient(ctx, a.logger, "generation", func(ctx context.Context) (generation.Output, error) {
			gctx, cancel := context.WithTimeout(ctx, a.ports.GenerationTimeout)
			defer cancel()
			return a.ports.Generator.Generate(gctx, prompt)
		})
		if err != nil {
			if transient(err) || errors.Is(err, model.ErrGenerationRefused) || ctx.Err() != nil {
				return nil, nil, nil, err
			}
			a.logger.Warn("adjuster: unusable generator output", "attempt", attempt, "error", err)
			continue
		}
		if out.Workout != nil {
			proposal = out.Workout
			raw = out.Raw
			break
		}
	}

	var adjusted model.DailyWorkout
	if proposal == nil {
		// Generation-quality fault: fall back to the deterministic heuristics.
		a.logger.Warn("adjuster: generator produced no usable proposal, applying heuristics directly")
		adjusted = a.applyHeuristics(scheduled, actx, profile)
	} else {
		adjusted = a.enforce(*proposal, scheduled, actx, profile)
	}
	return &adjusted, evidence, raw, nil
}

// applyHeuristics builds the replacement session from the scheduled one
// using only the deterministic scaling rules.
func (a *Adjuster) applyHeuristics(scheduled model.DailyWorkout, actx model.AdjustmentContext, profile model.RunnerProfile) model.DailyWorkout {
	adjusted := scheduled
	adjusted.Rationale = ""
	var notes []string

	injured := profile.Injured() || actx.Injured()
	if injured && !adjusted.Type.LowRisk() {
		adjusted.Type = model.WorkoutEasy
		notes = append(notes, "Converted to easy effort because an injury flag is active.")
	}
	if actx.Fatigue >= a.rules.FatigueThreshold {
		adjusted.Distance = roundTenth(scheduled.Distance * (1 - a.rules.FatigueReduction))
		if adjusted.Type.Quality() {
			adjusted.Type = model.WorkoutEasy
		}
		notes = append(notes, fmt.Sprintf("Distance reduced %.0f%% for reported fatigue %d/10.",
			a.rules.FatigueReduction*100, actx.Fatigue))
	}
	if a.hot(actx.Weather) {
		adjusted.Pace = scheduled.Pace.Widen(a.rules.PaceWiden)
		notes = append(notes, HydrationNote)
	}
	if len(notes) == 0 {
		notes = append(notes, "No adjustment signals triggered; session unchanged.")
	}
	adjusted.Rationale = strings.Join(notes, " ")
	return adjusted
}

// enforce applies the same heuristics as hard bounds on the generator's
// proposal. The proposal may be more conservative than the bounds but
// never less.
func (a *Adjuster) enforce(proposal, scheduled model.DailyWorkout, actx model.AdjustmentContext, profile model.RunnerProfile) model.DailyWorkout {
	adjusted := proposal
	adjusted.Date = scheduled.Date
	adjusted.Day = scheduled.Day

	injured := profile.Injured() || actx.Injured()
	if injured && !adjusted.Type.LowRisk() {
		adjusted.Type = model.WorkoutEasy
	}
	if actx.Fatigue >= a.rules.FatigueThreshold {
		if maxDist := scheduled.Distance * (1 - a.rules.FatigueReduction); adjusted.Distance > maxDist {
			adjusted.Distance = roundTenth(maxDist)
		}
		if adjusted.Type.Quality() {
			adjusted.Type = model.WorkoutEasy
		}
	}
	if a.hot(actx.Weather) {
		if widened := scheduled.Pace.Widen(a.rules.PaceWiden); adjusted.Pace.High < widened.High {
			adjusted.Pace = widened
		}
		if !strings.Contains(adjusted.Rationale, "Hydrate") {
			adjusted.Rationale = strings.TrimSpace(adjusted.Rationale + " " + HydrationNote)
		}
	}
	return adjusted
}

// directives renders the triggered heuristics as prompt guidance so the
// generator's proposal starts from the right constraints.
func (a *Adjuster) directives(scheduled model.DailyWorkout, actx model.AdjustmentContext, profile model.RunnerProfile) []string {
	var out []string
	if profile.Injured() || actx.Injured() {
		out = append(out, "An injury flag is active: prescribe only rest or easy effort.")
	}
	if actx.Fatigue >= a.rules.FatigueThreshold {
		out = append(out, fmt.Sprintf("Fatigue is high (%d/10): reduce distance by at least %.0f%% and avoid quality work.",
			actx.Fatigue, a.rules.FatigueReduction*100))
	}
	if a.hot(actx.Weather) {
		out = append(out, "Conditions are hot or humid: slow the pace window and include hydration guidance.")
	}
	if len(out) == 0 {
		out = append(out, "No adverse signals: keep the session close to what was scheduled.")
	}
	return out
}

func (a *Adjuster) hot(w model.Weather) bool {
	return w.TempF > a.rules.HeatTempF ||
		w.Humidity > a.rules.HumidityThreshold ||
		w.Condition == model.WeatherHeat
}

// adjustQuery emphasizes the strongest context signal and picks the corpus
// domain that covers it.
func (a *Adjuster) adjustQuery(scheduled model.DailyWorkout, actx model.AdjustmentContext, profile model.RunnerProfile) (string, model.CorpusDomain) {
	base := fmt.Sprintf("adjusting a scheduled %s run of %.0f miles", scheduled.Type, scheduled.Distance)
	switch {
	case profile.Injured() || actx.Injured():
		flags := append(append([]string{}, profile.InjuryFlags...), actx.InjuryFlags...)
		return base + " while managing " + strings.Join(flags, ", "), model.DomainSafety
	case a.hot(actx.Weather):
		return base + " in heat and humidity, hydration and pacing", model.DomainFueling
	case actx.Fatigue >= a.rules.FatigueThreshold:
		return base + " under accumulated fatigue, recovery guidance", model.DomainSafety
	default:
		return base + " under normal conditions", model.DomainPlans
	}
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
