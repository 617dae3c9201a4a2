package generation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/model"
)

func TestParsePlanAssignsDates(t *testing.T) {
	raw := []byte(`{"weeks":[
		{"phase":"base","days":[
			{"day":"Mon","type":"rest","distance_mi":0},
			{"day":"Tue","type":"easy","distance_mi":4}
		]},
		{"phase":"build","days":[
			{"day":"Mon","type":"easy","distance_mi":3}
		]}
	]}`)
	start := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	plan, err := parsePlan(raw, testProfile(), start)
	require.NoError(t, err)
	require.Len(t, plan.Weeks, 2)

	// Missing indices default to position; week 2 starts 7 days after week 1.
	assert.Equal(t, 1, plan.Weeks[0].Index)
	assert.Equal(t, 2, plan.Weeks[1].Index)
	assert.Equal(t, start.AddDate(0, 0, 7), plan.Weeks[1].Days[0].Date)

	// Omitted totals fall back to the day sum.
	assert.InDelta(t, 4.0, plan.Weeks[0].TotalMileage, 0.001)
	assert.Equal(t, "Tue", plan.Weeks[0].Days[1].Day)
}

func TestParsePlanRejectsUnknownWorkoutType(t *testing.T) {
	raw := []byte(`{"weeks":[{"days":[{"day":"Mon","type":"fartlek","distance_mi":4}]}]}`)
	_, err := parsePlan(raw, testProfile(), time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestParsePlanRejectsEmptyAndOversizedWeeks(t *testing.T) {
	_, err := parsePlan([]byte(`{"weeks":[]}`), testProfile(), time.Now().UTC())
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = parsePlan([]byte(`{"weeks":[{"days":[]}]}`), testProfile(), time.Now().UTC())
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestParsePlanUnknownPhaseDegradesToBase(t *testing.T) {
	raw := []byte(`{"weeks":[{"phase":"sharpening","days":[{"day":"Mon","type":"easy","distance_mi":4}]}]}`)
	plan, err := parsePlan(raw, testProfile(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, model.PhaseBase, plan.Weeks[0].Phase)
}

func TestParseWorkoutTakesDateFromContext(t *testing.T) {
	date := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC) // a Thursday
	w, err := parseWorkout(
		[]byte(`{"type":"easy","distance_mi":3,"pace_low":9,"pace_high":10}`),
		Prompt{Task: TaskAdjust, Context: &model.AdjustmentContext{Date: date}},
	)
	require.NoError(t, err)
	assert.Equal(t, date, w.Date)
	assert.Equal(t, "Thu", w.Day)
	assert.Equal(t, model.PaceRange{Low: 9, High: 10}, w.Pace)
}
