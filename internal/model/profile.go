package model

import "time"

// RunnerProfile is the identity-free runner context supplied by the caller.
// Immutable for the duration of one workflow execution.
type RunnerProfile struct {
	GoalRace      string    `json:"goal_race"` // e.g. "marathon", "half marathon", "10k"
	GoalDate      time.Time `json:"goal_date"`
	WeeklyMileage float64   `json:"weekly_mileage"`  // current weekly volume in miles
	LongestRun    float64   `json:"longest_run"`     // longest recent run in miles
	BaselinePace  float64   `json:"baseline_pace"`   // easy pace in minutes per mile
	InjuryFlags   []string  `json:"injury_flags"`    // active conditions, e.g. "shin splints"
}

// Injured reports whether any injury flag is active.
func (p RunnerProfile) Injured() bool {
	return len(p.InjuryFlags) > 0
}

// WeatherCondition tags the day's conditions for adjustment queries.
type WeatherCondition string

const (
	WeatherClear WeatherCondition = "clear"
	WeatherRain  WeatherCondition = "rain"
	WeatherHeat  WeatherCondition = "heat"
	WeatherCold  WeatherCondition = "cold"
	WeatherWind  WeatherCondition = "wind"
)

// Weather describes today's conditions.
type Weather struct {
	TempF     float64          `json:"temp_f"`
	Humidity  float64          `json:"humidity"` // 0..1
	Condition WeatherCondition `json:"condition"`
}

// AdjustmentContext is the ephemeral per-request context for adjusting
// today's session. Supplied by the caller, never stored beyond the run log.
type AdjustmentContext struct {
	Date        time.Time `json:"date"`
	Fatigue     int       `json:"fatigue"` // 0 (fresh) .. 10 (exhausted)
	Weather     Weather   `json:"weather"`
	InjuryFlags []string  `json:"injury_flags"`
}

// Injured reports whether any injury flag is active in the snapshot.
func (c AdjustmentContext) Injured() bool {
	return len(c.InjuryFlags) > 0
}
