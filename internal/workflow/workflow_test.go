package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/guard"
	"github.com/paceline-ai/stride/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeRetriever serves canned evidence and can fail a number of leading
// calls with ErrIndexUnavailable to exercise the retry policy.
type fakeRetriever struct {
	mu         sync.Mutex
	evidence   []model.Evidence
	failures   int
	calls      int
	lastQuery  string
	lastDomain model.CorpusDomain
}

func (f *fakeRetriever) Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls++
	f.lastQuery = query
	f.lastDomain = domain
	if f.calls <= f.failures {
		return nil, model.ErrIndexUnavailable
	}
	if k < len(f.evidence) {
		return f.evidence[:k], nil
	}
	return f.evidence, nil
}

func (f *fakeRetriever) Healthy(ctx context.Context) error { return nil }

// genStep is one scripted generator response.
type genStep struct {
	out generation.Output
	err error
}

// fakeGenerator replays scripted responses in order; the last step repeats.
type fakeGenerator struct {
	mu         sync.Mutex
	steps      []genStep
	calls      int
	lastPrompt generation.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt generation.Prompt) (generation.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return generation.Output{}, err
	}
	i := f.calls
	f.calls++
	f.lastPrompt = prompt
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].out, f.steps[i].err
}

// memAppender records entries in memory and assigns sequence numbers.
type memAppender struct {
	mu      sync.Mutex
	entries []model.RunLogEntry
}

func (m *memAppender) Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memAppender) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func goodEvidence() []model.Evidence {
	return []model.Evidence{
		{Source: "daniels.md#3", Text: "Increase weekly volume no more than 10 percent.", Score: 0.82, Rank: 1},
		{Source: "pfitzinger.md#7", Text: "The long run should stay below a third of the week.", Score: 0.74, Rank: 2},
		{Source: "hansons.md#2", Text: "Cumulative fatigue drives adaptation.", Score: 0.51, Rank: 3},
	}
}

func testProfile() model.RunnerProfile {
	return model.RunnerProfile{
		GoalRace:      "half marathon",
		GoalDate:      time.Date(2026, 12, 6, 0, 0, 0, 0, time.UTC),
		WeeklyMileage: 20,
		LongestRun:    8,
		BaselinePace:  9.5,
	}
}

// evenPlan builds a structurally valid plan: three easy days, a long day at
// the week-fraction cap, and a rest day, with totals within the configured
// caps.
func evenPlan(start time.Time, weeks int, weeklyMileage float64) *model.TrainingPlan {
	plan := &model.TrainingPlan{
		GoalRace:  "half marathon",
		GoalDate:  start.AddDate(0, 0, weeks*7),
		StartDate: start,
	}
	for w := 1; w <= weeks; w++ {
		long := weeklyMileage * 0.3
		easy := weeklyMileage * 0.25
		recovery := weeklyMileage * 0.2
		week := model.WeekPlan{
			Index:        w,
			Phase:        model.PhaseBase,
			TotalMileage: weeklyMileage,
			Days: []model.DailyWorkout{
				{Date: start.AddDate(0, 0, (w-1)*7), Day: "Mon", Type: model.WorkoutEasy, Distance: easy, Pace: model.PaceRange{Low: 9, High: 9.75}},
				{Date: start.AddDate(0, 0, (w-1)*7+2), Day: "Wed", Type: model.WorkoutEasy, Distance: easy, Pace: model.PaceRange{Low: 9, High: 9.75}},
				{Date: start.AddDate(0, 0, (w-1)*7+4), Day: "Fri", Type: model.WorkoutEasy, Distance: recovery, Pace: model.PaceRange{Low: 9, High: 9.75}},
				{Date: start.AddDate(0, 0, (w-1)*7+5), Day: "Sat", Type: model.WorkoutLong, Distance: long, Pace: model.PaceRange{Low: 9.5, High: 10.25}},
				{Date: start.AddDate(0, 0, (w-1)*7+6), Day: "Sun", Type: model.WorkoutRest},
			},
		}
		plan.Weeks = append(plan.Weeks, week)
	}
	return plan
}

func planOutput(plan *model.TrainingPlan) generation.Output {
	return generation.Output{Plan: plan, Raw: []byte(`{"weeks":[]}`)}
}

func workoutOutput(w model.DailyWorkout) generation.Output {
	return generation.Output{Workout: &w, Raw: []byte(`{"type":"` + string(w.Type) + `"}`)}
}

// newTestRouter wires a router over the fakes with default rules.
func newTestRouter(ret *fakeRetriever, gen *fakeGenerator, log *memAppender) *Router {
	rules := config.DefaultRules()
	logger := testLogger()
	ports := Ports{Retriever: ret, Generator: gen}
	planner := NewPlanner(ports, rules, logger)
	planner.now = func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) }
	adjuster := NewAdjuster(ports, rules, logger)
	return NewRouter(planner, adjuster,
		guard.NewHallucination(rules, logger),
		guard.NewSafety(rules, logger),
		log, logger)
}
