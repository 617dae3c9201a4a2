package generation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paceline-ai/stride/internal/model"
)

// Wire schema for plan responses. Dates are not part of the wire format;
// they are assigned positionally from the plan's start date so the backend
// cannot put sessions on the wrong calendar days.
type planWire struct {
	Weeks []weekWire `json:"weeks"`
}

type weekWire struct {
	Index        int       `json:"index"`
	Phase        string    `json:"phase"`
	TotalMileage float64   `json:"total_mileage"`
	Days         []dayWire `json:"days"`
}

type dayWire struct {
	Day        string  `json:"day"`
	Type       string  `json:"type"`
	DistanceMi float64 `json:"distance_mi"`
	PaceLow    float64 `json:"pace_low"`
	PaceHigh   float64 `json:"pace_high"`
	Rationale  string  `json:"rationale"`
}

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// parsePlan decodes a plan response and assigns calendar dates starting from
// start (the Monday of week 1). Structural problems beyond JSON validity,
// such as mismatched weekly totals, are left for plan.Validate to catch.
func parsePlan(raw []byte, profile model.RunnerProfile, start time.Time) (*model.TrainingPlan, error) {
	var wire planWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", ErrMalformedOutput, err)
	}
	if len(wire.Weeks) == 0 {
		return nil, fmt.Errorf("%w: plan has no weeks", ErrMalformedOutput)
	}

	plan := &model.TrainingPlan{
		GoalRace:  profile.GoalRace,
		GoalDate:  profile.GoalDate,
		StartDate: start,
		Weeks:     make([]model.WeekPlan, 0, len(wire.Weeks)),
	}

	for i, ww := range wire.Weeks {
		if len(ww.Days) == 0 || len(ww.Days) > 7 {
			return nil, fmt.Errorf("%w: week %d has %d days", ErrMalformedOutput, i+1, len(ww.Days))
		}
		index := ww.Index
		if index == 0 {
			index = i + 1
		}
		week := model.WeekPlan{
			Index:        index,
			Phase:        parsePhase(ww.Phase),
			TotalMileage: ww.TotalMileage,
			Days:         make([]model.DailyWorkout, 0, len(ww.Days)),
		}
		for d, dw := range ww.Days {
			wtype, err := parseWorkoutType(dw.Type)
			if err != nil {
				return nil, err
			}
			date := start.AddDate(0, 0, i*7+d)
			week.Days = append(week.Days, model.DailyWorkout{
				Date:      date,
				Day:       weekdayNames[d],
				Type:      wtype,
				Distance:  dw.DistanceMi,
				Pace:      model.PaceRange{Low: dw.PaceLow, High: dw.PaceHigh},
				Rationale: dw.Rationale,
			})
		}
		if week.TotalMileage == 0 {
			week.TotalMileage = week.DaySum()
		}
		plan.Weeks = append(plan.Weeks, week)
	}

	return plan, nil
}

// parseWorkout decodes an adjustment response. Date and day come from the
// scheduled session, not from the backend.
func parseWorkout(raw []byte, prompt Prompt) (*model.DailyWorkout, error) {
	var wire dayWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode workout: %v", ErrMalformedOutput, err)
	}
	wtype, err := parseWorkoutType(wire.Type)
	if err != nil {
		return nil, err
	}

	workout := &model.DailyWorkout{
		Type:      wtype,
		Distance:  wire.DistanceMi,
		Pace:      model.PaceRange{Low: wire.PaceLow, High: wire.PaceHigh},
		Rationale: wire.Rationale,
	}
	if prompt.Scheduled != nil {
		workout.Date = prompt.Scheduled.Date
		workout.Day = prompt.Scheduled.Day
	} else if prompt.Context != nil {
		workout.Date = prompt.Context.Date
		workout.Day = workout.Date.UTC().Weekday().String()[:3]
	}
	return workout, nil
}

func parseWorkoutType(s string) (model.WorkoutType, error) {
	switch t := model.WorkoutType(s); t {
	case model.WorkoutRest, model.WorkoutEasy, model.WorkoutLong,
		model.WorkoutTempo, model.WorkoutInterval, model.WorkoutRace:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown workout type %q", ErrMalformedOutput, s)
	}
}

func parsePhase(s string) model.Phase {
	switch p := model.Phase(s); p {
	case model.PhaseBase, model.PhaseBuild, model.PhasePeak, model.PhaseTaper:
		return p
	default:
		// Unknown phases degrade to base rather than failing the plan;
		// phase labels are informational.
		return model.PhaseBase
	}
}
