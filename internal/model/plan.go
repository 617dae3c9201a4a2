// Package model defines the core domain types for Stride.
//
// Types are shared by the workflow nodes, the guards, the run log, and the
// HTTP/MCP surfaces. They use strong typing (enums, time.Time, uuid.UUID)
// and avoid interface{} wherever possible.
package model

import (
	"fmt"
	"math"
	"time"
)

// WorkoutType classifies a daily session.
type WorkoutType string

const (
	WorkoutRest     WorkoutType = "rest"
	WorkoutEasy     WorkoutType = "easy"
	WorkoutLong     WorkoutType = "long"
	WorkoutTempo    WorkoutType = "tempo"
	WorkoutInterval WorkoutType = "interval"
	WorkoutRace     WorkoutType = "race"
)

// Quality reports whether the session is a hard (quality) effort.
func (w WorkoutType) Quality() bool {
	return w == WorkoutTempo || w == WorkoutInterval || w == WorkoutRace
}

// LowRisk reports whether the session is a reduced-risk effort.
// Injured runners may only be prescribed low-risk sessions.
func (w WorkoutType) LowRisk() bool {
	return w == WorkoutRest || w == WorkoutEasy
}

// Phase labels the training block a week belongs to.
type Phase string

const (
	PhaseBase  Phase = "base"
	PhaseBuild Phase = "build"
	PhasePeak  Phase = "peak"
	PhaseTaper Phase = "taper"
)

// PaceRange is a prescribed pace window in minutes per mile.
// Low is the faster bound, High the slower. Zero values mean "by effort"
// (rest days and unstructured easy running).
type PaceRange struct {
	Low  float64 `json:"low_min_per_mi,omitempty"`
	High float64 `json:"high_min_per_mi,omitempty"`
}

// Widen returns a copy with the slow bound relaxed by delta minutes per mile.
func (p PaceRange) Widen(delta float64) PaceRange {
	if p.High == 0 {
		return p
	}
	return PaceRange{Low: p.Low, High: p.High + delta}
}

// DailyWorkout is a single prescribed session.
type DailyWorkout struct {
	Date      time.Time   `json:"date"`
	Day       string      `json:"day"` // Mon..Sun, for display
	Type      WorkoutType `json:"type"`
	Distance  float64     `json:"distance_mi"`
	Pace      PaceRange   `json:"pace"`
	Rationale string      `json:"rationale,omitempty"`
}

// WeekPlan is one training week.
// TotalMileage must equal the sum of the daily distances.
type WeekPlan struct {
	Index        int            `json:"index"` // 1-based, contiguous
	Phase        Phase          `json:"phase"`
	TotalMileage float64        `json:"total_mileage"`
	Days         []DailyWorkout `json:"days"`
}

// DaySum returns the sum of the week's daily distances.
func (w WeekPlan) DaySum() float64 {
	var sum float64
	for _, d := range w.Days {
		sum += d.Distance
	}
	return sum
}

// TrainingPlan is an ordered sequence of weeks leading to a goal race.
type TrainingPlan struct {
	GoalRace  string     `json:"goal_race"`
	GoalDate  time.Time  `json:"goal_date"`
	StartDate time.Time  `json:"start_date"`
	Weeks     []WeekPlan `json:"weeks"`
}

// mileageTolerance absorbs float rounding when comparing a week's stated
// total against the sum of its days.
const mileageTolerance = 0.05

// Validate checks the structural invariants: at least one week, week indices
// contiguous from 1, and per-week totals matching the day sums.
func (p *TrainingPlan) Validate() error {
	if len(p.Weeks) == 0 {
		return fmt.Errorf("model: plan has no weeks")
	}
	for i, w := range p.Weeks {
		if w.Index != i+1 {
			return fmt.Errorf("model: week %d has index %d, want %d", i, w.Index, i+1)
		}
		if diff := math.Abs(w.TotalMileage - w.DaySum()); diff > mileageTolerance {
			return fmt.Errorf("model: week %d total %.1f does not match day sum %.1f", w.Index, w.TotalMileage, w.DaySum())
		}
	}
	return nil
}

// WorkoutOn returns the scheduled workout for the given calendar date,
// or false if the date falls outside the plan.
func (p *TrainingPlan) WorkoutOn(date time.Time) (DailyWorkout, bool) {
	y, m, d := date.UTC().Date()
	for _, w := range p.Weeks {
		for _, day := range w.Days {
			dy, dm, dd := day.Date.UTC().Date()
			if dy == y && dm == m && dd == d {
				return day, true
			}
		}
	}
	return DailyWorkout{}, false
}

// WeekOf returns the week containing the given date, or false.
func (p *TrainingPlan) WeekOf(date time.Time) (WeekPlan, bool) {
	y, m, d := date.UTC().Date()
	for _, w := range p.Weeks {
		for _, day := range w.Days {
			dy, dm, dd := day.Date.UTC().Date()
			if dy == y && dm == m && dd == d {
				return w, true
			}
		}
	}
	return WeekPlan{}, false
}
