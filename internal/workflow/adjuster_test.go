package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/model"
)

func newTestAdjuster(ret *fakeRetriever, gen *fakeGenerator) *Adjuster {
	return NewAdjuster(Ports{Retriever: ret, Generator: gen}, config.DefaultRules(), testLogger())
}

// adjustPlan has a tempo session on the test date.
func adjustPlan() (*model.TrainingPlan, time.Time) {
	date := testStart.AddDate(0, 0, 1) // Tuesday of week 1
	plan := evenPlan(testStart, 4, 20)
	plan.Weeks[0].Days[0] = model.DailyWorkout{
		Date: date, Day: "Tue", Type: model.WorkoutTempo,
		Distance: 6, Pace: model.PaceRange{Low: 8, High: 8.5},
	}
	plan.Weeks[0].TotalMileage = plan.Weeks[0].DaySum()
	return plan, date
}

func calmContext(date time.Time) model.AdjustmentContext {
	return model.AdjustmentContext{
		Date:    date,
		Fatigue: 3,
		Weather: model.Weather{TempF: 60, Humidity: 0.4, Condition: model.WeatherClear},
	}
}

func TestAdjustDateOutOfPlanRange(t *testing.T) {
	plan, _ := adjustPlan()
	a := newTestAdjuster(&fakeRetriever{}, &fakeGenerator{steps: []genStep{{}}})

	actx := calmContext(testStart.AddDate(0, 0, 365))
	_, _, _, err := a.Adjust(context.Background(), testProfile(), plan, actx)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDateOutOfPlanRange)
}

func TestAdjustCalmConditionsKeepSession(t *testing.T) {
	plan, date := adjustPlan()
	proposal := model.DailyWorkout{Type: model.WorkoutTempo, Distance: 6, Pace: model.PaceRange{Low: 8, High: 8.5}, Rationale: "conditions are fine"}
	ret := &fakeRetriever{evidence: goodEvidence()}
	gen := &fakeGenerator{steps: []genStep{{out: workoutOutput(proposal)}}}
	a := newTestAdjuster(ret, gen)

	adjusted, evidence, raw, err := a.Adjust(context.Background(), testProfile(), plan, calmContext(date))
	require.NoError(t, err)
	assert.Equal(t, model.WorkoutTempo, adjusted.Type)
	assert.Equal(t, 6.0, adjusted.Distance)
	assert.Equal(t, date, adjusted.Date)
	assert.Equal(t, goodEvidence(), evidence)
	assert.NotEmpty(t, raw)
	assert.Equal(t, model.DomainPlans, ret.lastDomain)
}

func TestAdjustHighFatigueBoundsDistanceAndDropsQuality(t *testing.T) {
	plan, date := adjustPlan()
	// Generator ignores the guidance and keeps the full tempo session.
	proposal := model.DailyWorkout{Type: model.WorkoutTempo, Distance: 6, Pace: model.PaceRange{Low: 8, High: 8.5}}
	gen := &fakeGenerator{steps: []genStep{{out: workoutOutput(proposal)}}}
	a := newTestAdjuster(&fakeRetriever{evidence: goodEvidence()}, gen)

	actx := calmContext(date)
	actx.Fatigue = 8
	adjusted, _, _, err := a.Adjust(context.Background(), testProfile(), plan, actx)
	require.NoError(t, err)

	// 30% reduction of the scheduled 6 miles, quality converted to easy.
	assert.Equal(t, model.WorkoutEasy, adjusted.Type)
	assert.InDelta(t, 4.2, adjusted.Distance, 0.001)
	assert.Contains(t, gen.lastPrompt.Guidance, "Fatigue is high")
}

func TestAdjustHeatWidensPaceAndAddsHydration(t *testing.T) {
	plan, date := adjustPlan()
	proposal := model.DailyWorkout{Type: model.WorkoutTempo, Distance: 6, Pace: model.PaceRange{Low: 8, High: 8.5}}
	ret := &fakeRetriever{evidence: goodEvidence()}
	gen := &fakeGenerator{steps: []genStep{{out: workoutOutput(proposal)}}}
	a := newTestAdjuster(ret, gen)

	actx := calmContext(date)
	actx.Weather = model.Weather{TempF: 91, Humidity: 0.8, Condition: model.WeatherHeat}
	adjusted, _, _, err := a.Adjust(context.Background(), testProfile(), plan, actx)
	require.NoError(t, err)

	// Slow bound relaxed by the configured 0.75 min/mi.
	assert.InDelta(t, 9.25, adjusted.Pace.High, 0.001)
	assert.Equal(t, 8.0, adjusted.Pace.Low)
	assert.Contains(t, adjusted.Rationale, "Hydrate")
	assert.Equal(t, model.DomainFueling, ret.lastDomain)
}

func TestAdjustInjuryDominatesAllSignals(t *testing.T) {
	plan, date := adjustPlan()
	// Generator proposes keeping the tempo despite the injury directive.
	proposal := model.DailyWorkout{Type: model.WorkoutTempo, Distance: 6}
	ret := &fakeRetriever{evidence: goodEvidence()}
	gen := &fakeGenerator{steps: []genStep{{out: workoutOutput(proposal)}}}
	a := newTestAdjuster(ret, gen)

	actx := calmContext(date)
	actx.InjuryFlags = []string{"shin splints"}
	adjusted, _, _, err := a.Adjust(context.Background(), testProfile(), plan, actx)
	require.NoError(t, err)

	assert.True(t, adjusted.Type.LowRisk(), "injury flags force a reduced-risk category, got %s", adjusted.Type)
	assert.Equal(t, model.DomainSafety, ret.lastDomain)
	assert.Contains(t, ret.lastQuery, "shin splints")
	assert.Contains(t, gen.lastPrompt.Guidance, "injury flag is active")
}

func TestAdjustProfileInjuryAlsoDominates(t *testing.T) {
	plan, date := adjustPlan()
	proposal := model.DailyWorkout{Type: model.WorkoutInterval, Distance: 5}
	gen := &fakeGenerator{steps: []genStep{{out: workoutOutput(proposal)}}}
	a := newTestAdjuster(&fakeRetriever{evidence: goodEvidence()}, gen)

	profile := testProfile()
	profile.InjuryFlags = []string{"achilles tendinitis"}
	adjusted, _, _, err := a.Adjust(context.Background(), profile, plan, calmContext(date))
	require.NoError(t, err)
	assert.True(t, adjusted.Type.LowRisk())
}

func TestAdjustFallsBackToHeuristicsOnBadGeneration(t *testing.T) {
	plan, date := adjustPlan()
	gen := &fakeGenerator{steps: []genStep{
		{err: generation.ErrMalformedOutput},
		{err: generation.ErrMalformedOutput},
	}}
	a := newTestAdjuster(&fakeRetriever{evidence: goodEvidence()}, gen)

	actx := calmContext(date)
	actx.Fatigue = 9
	adjusted, _, raw, err := a.Adjust(context.Background(), testProfile(), plan, actx)
	require.NoError(t, err, "generation-quality faults never surface as errors")
	assert.Nil(t, raw)
	assert.Equal(t, 2, gen.calls)

	// Deterministic heuristics applied to the scheduled session.
	assert.Equal(t, model.WorkoutEasy, adjusted.Type)
	assert.InDelta(t, 4.2, adjusted.Distance, 0.001)
	assert.Contains(t, adjusted.Rationale, "fatigue 9/10")
}

func TestAdjustTimeoutRetriedOnceThenSurfaces(t *testing.T) {
	plan, date := adjustPlan()
	gen := &fakeGenerator{steps: []genStep{
		{err: model.ErrGenerationTimeout},
		{err: model.ErrGenerationTimeout},
	}}
	a := newTestAdjuster(&fakeRetriever{evidence: goodEvidence()}, gen)

	_, _, _, err := a.Adjust(context.Background(), testProfile(), plan, calmContext(date))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrGenerationTimeout)
	assert.Equal(t, 2, gen.calls)
}

func TestAdjustRefusalSurfacesWithoutRetry(t *testing.T) {
	plan, date := adjustPlan()
	gen := &fakeGenerator{steps: []genStep{{err: model.ErrGenerationRefused}}}
	a := newTestAdjuster(&fakeRetriever{evidence: goodEvidence()}, gen)

	_, _, _, err := a.Adjust(context.Background(), testProfile(), plan, calmContext(date))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrGenerationRefused)
	assert.Equal(t, 1, gen.calls, "a refusal is final for these inputs")
}

func TestApplyHeuristicsNoSignals(t *testing.T) {
	a := newTestAdjuster(&fakeRetriever{}, &fakeGenerator{steps: []genStep{{}}})
	scheduled := model.DailyWorkout{Type: model.WorkoutLong, Distance: 10, Pace: model.PaceRange{Low: 9, High: 9.75}}

	adjusted := a.applyHeuristics(scheduled, calmContext(testStart), testProfile())
	assert.Equal(t, scheduled.Type, adjusted.Type)
	assert.Equal(t, scheduled.Distance, adjusted.Distance)
	assert.Equal(t, scheduled.Pace, adjusted.Pace)
	assert.Contains(t, adjusted.Rationale, "No adjustment signals")
}
