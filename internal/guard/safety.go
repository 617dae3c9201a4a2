// Package guard implements the two deterministic gates every generated
// artifact passes through before it reaches a caller: the hallucination
// guard (minimum-evidence policy) and the safety guard (hard numeric
// training constraints).
//
// The safety guard is the single source of truth for safety. It never
// delegates a decision to a generative call, and it is the only component
// permitted to alter a plan or workout after generation.
package guard

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/model"
)

// SafetyGuard validates and repairs artifacts against the configured rule
// set. All thresholds are injected; nothing is hard-coded.
type SafetyGuard struct {
	rules  config.Rules
	logger *slog.Logger
}

// NewSafety creates a SafetyGuard with the given thresholds.
func NewSafety(rules config.Rules, logger *slog.Logger) *SafetyGuard {
	return &SafetyGuard{rules: rules, logger: logger}
}

// violation is one triggered rule with its explanation fragment.
type violation struct {
	rule    string
	message string
}

// Validate applies the rule set in fixed order and returns the verdict.
// Every applicable rule runs even after a violation so the explanation is
// complete. ctx may be nil for plan validation; when present its injury
// snapshot participates in the injury veto alongside the profile's flags.
//
// The verdict artifact is the repaired copy when MODIFIED, the original
// when APPROVED, and a safe placeholder when REJECTED. The input artifact
// is never mutated.
func (g *SafetyGuard) Validate(artifact model.Artifact, profile model.RunnerProfile, ctx *model.AdjustmentContext) model.SafetyVerdict {
	injured := profile.Injured() || (ctx != nil && ctx.Injured())

	switch a := artifact.(type) {
	case *model.TrainingPlan:
		return g.validatePlan(a, profile, injured)
	case *model.DailyWorkout:
		return g.validateWorkout(a, injured)
	case *model.Fallback:
		// The fallback's placeholder is a prescription like any other and
		// must satisfy the same rules.
		inner := g.validateWorkout(&a.Placeholder, injured)
		repaired := *a
		if w, ok := inner.Artifact.(*model.DailyWorkout); ok {
			repaired.Placeholder = *w
		}
		inner.Artifact = &repaired
		return inner
	default:
		// The artifact union is closed; reaching this is a programming error.
		g.logger.Error("safety: unknown artifact kind", "kind", artifact.Kind())
		return rejectedVerdict(nil, []violation{{
			rule:    model.RulePlausibilityBounds,
			message: fmt.Sprintf("unknown artifact kind %q", artifact.Kind()),
		}})
	}
}

func (g *SafetyGuard) validatePlan(plan *model.TrainingPlan, profile model.RunnerProfile, injured bool) model.SafetyVerdict {
	modified := false
	repaired := clonePlan(plan)

	// The long-run clamp lowers week totals, so its repair must run before
	// the overload pass: a week clamped after its successor was measured
	// would let the successor slip past the cap against the new, lower
	// baseline. Violations are still reported in rule order.
	var overloads, longRuns []violation

	// Rule 2: long-run cap. A single run is bounded by the week-fraction
	// cap over the week's prescribed volume, the absolute ceiling, and a
	// jump cap relative to the runner's recent longest run.
	for i := range repaired.Weeks {
		w := &repaired.Weeks[i]
		limit := g.longRunLimit(w.TotalMileage, profile.LongestRun)
		for j := range w.Days {
			d := &w.Days[j]
			if d.Distance > limit+mileageEpsilon {
				longRuns = append(longRuns, violation{
					rule: model.RuleLongRunCap,
					message: fmt.Sprintf("week %d %s run of %.1f mi exceeds the long-run cap %.1f; clamped",
						w.Index, d.Day, d.Distance, limit),
				})
				d.Distance = limit
				modified = true
			}
		}
		w.TotalMileage = w.DaySum()
	}

	// Rule 1: progressive-overload cap. Week 1 is measured against the
	// runner's current weekly volume; later weeks against their repaired
	// predecessor, so the cap holds over the totals actually returned.
	// The proportional clamp preserves each day's share of its week and
	// only lowers distances, so it cannot re-violate the long-run limits
	// established above.
	prev := profile.WeeklyMileage
	for i := range repaired.Weeks {
		w := &repaired.Weeks[i]
		if prev > 0 {
			cap := prev * (1 + g.rules.OverloadCapPct)
			if w.TotalMileage > cap+mileageEpsilon {
				overloads = append(overloads, violation{
					rule: model.RuleProgressiveOverloadCap,
					message: fmt.Sprintf("week %d mileage %.1f exceeds %.0f%% increase over %.1f; clamped to %.1f",
						w.Index, w.TotalMileage, g.rules.OverloadCapPct*100, prev, cap),
				})
				scaleWeek(w, cap)
				modified = true
			}
		}
		prev = w.TotalMileage
	}

	violations := append(overloads, longRuns...)

	// Rule 3: injury veto. Dominates every other adjustment signal.
	if injured {
		vetoed := false
		for i := range repaired.Weeks {
			for j := range repaired.Weeks[i].Days {
				d := &repaired.Weeks[i].Days[j]
				if !d.Type.LowRisk() {
					d.Type = model.WorkoutEasy
					d.Pace = model.PaceRange{}
					d.Rationale = strings.TrimSpace(d.Rationale + " " + model.InjuryDisclaimer)
					vetoed = true
				}
			}
		}
		if vetoed {
			violations = append(violations, violation{
				rule:    model.RuleInjuryVeto,
				message: "active injury flag: all non-easy sessions rewritten to easy effort",
			})
			modified = true
		}
	}

	// Advisory: back-to-back quality sessions. Recorded, never repaired.
	violations = append(violations, backToBackAdvisories(repaired)...)

	// Rule 4: absolute plausibility bounds. The only rule that rejects.
	if rejects := planPlausibility(plan); len(rejects) > 0 {
		violations = append(violations, rejects...)
		return rejectedVerdict(plan, violations)
	}

	verdict := model.SafetyVerdict{
		Outcome:     model.VerdictApproved,
		Rules:       ruleNames(violations),
		Explanation: explain(violations),
		Artifact:    plan,
	}
	if modified {
		verdict.Outcome = model.VerdictModified
		verdict.Artifact = repaired
	}
	return verdict
}

func (g *SafetyGuard) validateWorkout(day *model.DailyWorkout, injured bool) model.SafetyVerdict {
	var violations []violation
	modified := false
	repaired := *day

	// Rule 2: the absolute single-run ceiling applies even without weekly
	// context; the week-fraction cap is enforced during plan validation.
	if repaired.Distance > g.rules.LongRunCeiling+mileageEpsilon {
		violations = append(violations, violation{
			rule: model.RuleLongRunCap,
			message: fmt.Sprintf("%.1f mi exceeds the absolute single-run ceiling %.1f; clamped",
				repaired.Distance, g.rules.LongRunCeiling),
		})
		repaired.Distance = g.rules.LongRunCeiling
		modified = true
	}

	// Rule 3: injury veto.
	if injured && !repaired.Type.LowRisk() {
		violations = append(violations, violation{
			rule:    model.RuleInjuryVeto,
			message: "active injury flag: session rewritten to easy effort",
		})
		repaired.Type = model.WorkoutEasy
		repaired.Pace = model.PaceRange{}
		repaired.Rationale = strings.TrimSpace(repaired.Rationale + " " + model.InjuryDisclaimer)
		modified = true
	}

	// Rule 4: plausibility bounds.
	if rejects := workoutPlausibility(day); len(rejects) > 0 {
		violations = append(violations, rejects...)
		return rejectedVerdict(day, violations)
	}

	verdict := model.SafetyVerdict{
		Outcome:     model.VerdictApproved,
		Rules:       ruleNames(violations),
		Explanation: explain(violations),
		Artifact:    day,
	}
	if modified {
		verdict.Outcome = model.VerdictModified
		verdict.Artifact = &repaired
	}
	return verdict
}

// longRunLimit combines the week-fraction cap, the absolute ceiling, and
// the jump cap over the runner's recent longest run.
func (g *SafetyGuard) longRunLimit(weekTotal, longestRecent float64) float64 {
	limit := math.Min(weekTotal*g.rules.LongRunFraction, g.rules.LongRunCeiling)
	if longestRecent > 0 {
		jumpCap := math.Max(longestRecent+2, longestRecent*1.2)
		limit = math.Min(limit, jumpCap)
	}
	return limit
}

const mileageEpsilon = 1e-6

// scaleWeek clamps a week's total to cap, scaling every day proportionally
// so the sum invariant and each day's share of the week are preserved.
// Distances are scaled exactly (no rounding) so the clamped total
// re-validates within the cap.
func scaleWeek(w *model.WeekPlan, cap float64) {
	if w.TotalMileage <= 0 {
		return
	}
	factor := cap / w.TotalMileage
	for i := range w.Days {
		w.Days[i].Distance *= factor
	}
	w.TotalMileage = w.DaySum()
}

// planPlausibility returns rejection violations for structurally impossible
// plans. No repair is attempted for these.
func planPlausibility(plan *model.TrainingPlan) []violation {
	if len(plan.Weeks) == 0 {
		return []violation{{
			rule:    model.RulePlausibilityBounds,
			message: "plan has no weeks",
		}}
	}
	var violations []violation
	for _, w := range plan.Weeks {
		if w.TotalMileage < 0 {
			violations = append(violations, violation{
				rule:    model.RulePlausibilityBounds,
				message: fmt.Sprintf("week %d has negative total mileage %.1f", w.Index, w.TotalMileage),
			})
		}
		for _, d := range w.Days {
			violations = append(violations, workoutPlausibility(&d)...)
		}
	}
	return violations
}

func workoutPlausibility(day *model.DailyWorkout) []violation {
	var violations []violation
	if day.Distance < 0 {
		violations = append(violations, violation{
			rule:    model.RulePlausibilityBounds,
			message: fmt.Sprintf("negative distance %.1f mi on %s", day.Distance, day.Day),
		})
	}
	if day.Pace.Low < 0 || day.Pace.High < 0 {
		violations = append(violations, violation{
			rule:    model.RulePlausibilityBounds,
			message: fmt.Sprintf("negative pace on %s", day.Day),
		})
	}
	return violations
}

// backToBackAdvisories flags consecutive quality sessions across the whole
// plan. Advisory only: recorded in the explanation, never repaired, and
// never changes the verdict outcome.
func backToBackAdvisories(plan *model.TrainingPlan) []violation {
	var violations []violation
	var prevQuality bool
	var prevDay string
	for _, w := range plan.Weeks {
		for _, d := range w.Days {
			if d.Type.Quality() && prevQuality {
				violations = append(violations, violation{
					rule:    model.RuleBackToBackQuality,
					message: fmt.Sprintf("advisory: consecutive quality sessions (%s then %s, week %d)", prevDay, d.Day, w.Index),
				})
			}
			prevQuality = d.Type.Quality()
			prevDay = d.Day
		}
	}
	return violations
}

// rejectedVerdict builds the REJECTED verdict with a safe placeholder:
// a rest day, carried in a Fallback so callers can never mistake it for
// generated content.
func rejectedVerdict(original model.Artifact, violations []violation) model.SafetyVerdict {
	placeholder := &model.Fallback{
		Reason: "safety validation rejected the generated artifact",
		Placeholder: model.DailyWorkout{
			Type:      model.WorkoutRest,
			Rationale: "Rest day substituted after safety rejection.",
		},
	}
	return model.SafetyVerdict{
		Outcome:     model.VerdictRejected,
		Rules:       ruleNames(violations),
		Explanation: explain(violations),
		Artifact:    placeholder,
	}
}

func ruleNames(violations []violation) []string {
	if len(violations) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(violations))
	names := make([]string, 0, len(violations))
	for _, v := range violations {
		if !seen[v.rule] {
			seen[v.rule] = true
			names = append(names, v.rule)
		}
	}
	return names
}

func explain(violations []violation) string {
	if len(violations) == 0 {
		return "within all safety limits"
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.message
	}
	return strings.Join(parts, "; ")
}

func clonePlan(plan *model.TrainingPlan) *model.TrainingPlan {
	out := *plan
	out.Weeks = make([]model.WeekPlan, len(plan.Weeks))
	for i, w := range plan.Weeks {
		cw := w
		cw.Days = make([]model.DailyWorkout, len(w.Days))
		copy(cw.Days, w.Days)
		out.Weeks[i] = cw
	}
	return &out
}
