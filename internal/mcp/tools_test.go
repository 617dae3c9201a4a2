package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/guard"
	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/testutil"
	"github.com/paceline-ai/stride/internal/workflow"
)

type stubRetriever struct{ evidence []model.Evidence }

func (s *stubRetriever) Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error) {
	return s.evidence, nil
}

func (s *stubRetriever) Healthy(ctx context.Context) error { return nil }

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt generation.Prompt) (generation.Output, error) {
	if prompt.Task == generation.TaskAdjust {
		w := *prompt.Scheduled
		return generation.Output{Workout: &w, Raw: []byte(`{}`)}, nil
	}
	plan := &model.TrainingPlan{
		GoalRace:  prompt.Profile.GoalRace,
		GoalDate:  prompt.Profile.GoalDate,
		StartDate: prompt.StartDate,
	}
	for i := 0; i < prompt.Weeks; i++ {
		plan.Weeks = append(plan.Weeks, model.WeekPlan{
			Index: i + 1, Phase: model.PhaseBase, TotalMileage: 12,
			Days: []model.DailyWorkout{
				{Date: prompt.StartDate.AddDate(0, 0, i*7), Day: "Mon", Type: model.WorkoutEasy, Distance: 3},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+2), Day: "Wed", Type: model.WorkoutEasy, Distance: 3},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+4), Day: "Fri", Type: model.WorkoutEasy, Distance: 2.5},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+5), Day: "Sat", Type: model.WorkoutLong, Distance: 3.5},
			},
		})
	}
	return generation.Output{Plan: plan, Raw: []byte(`{}`)}, nil
}

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	logger := testutil.TestLogger()
	rules := config.DefaultRules()
	store := runlog.NewMemory()
	t.Cleanup(func() { store.Close() })

	evidence := []model.Evidence{
		{Source: "daniels.md#3", Text: "ten percent rule", Score: 0.8, Rank: 1},
		{Source: "pfitzinger.md#7", Text: "long run share", Score: 0.7, Rank: 2},
	}
	ports := workflow.Ports{Retriever: &stubRetriever{evidence: evidence}, Generator: stubGenerator{}}
	router := workflow.NewRouter(
		workflow.NewPlanner(ports, rules, logger),
		workflow.NewAdjuster(ports, rules, logger),
		guard.NewHallucination(rules, logger),
		guard.NewSafety(rules, logger),
		store, logger,
	)
	return New(router, store, logger)
}

func callTool(args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleGeneratePlanTool(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleGeneratePlan(context.Background(), callTool(map[string]any{
		"goal_race":      "10k",
		"goal_date":      time.Now().UTC().AddDate(0, 2, 0).Format("2006-01-02"),
		"weekly_mileage": 12.0,
		"longest_run":    5.0,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected tool error: %+v", result.Content)

	text := result.Content[0].(mcplib.TextContent).Text
	var payload struct {
		Artifact struct {
			Kind string `json:"kind"`
		} `json:"artifact"`
		Verdict model.SafetyVerdict `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "training_plan", payload.Artifact.Kind)
	assert.Equal(t, model.VerdictApproved, payload.Verdict.Outcome)
}

func TestHandleGeneratePlanToolMissingArgs(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleGeneratePlan(context.Background(), callTool(map[string]any{
		"goal_race": "10k",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAdjustTodayTool(t *testing.T) {
	s := newTestMCP(t)

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	plan := model.TrainingPlan{
		GoalRace:  "10k",
		GoalDate:  date.AddDate(0, 1, 0),
		StartDate: date,
		Weeks: []model.WeekPlan{{
			Index: 1, TotalMileage: 4,
			Days: []model.DailyWorkout{
				{Date: date, Day: "Tue", Type: model.WorkoutEasy, Distance: 4},
			},
		}},
	}
	planJSON, err := json.Marshal(plan)
	require.NoError(t, err)

	result, err := s.handleAdjustToday(context.Background(), callTool(map[string]any{
		"plan_json": string(planJSON),
		"date":      "2026-09-01",
		"fatigue":   2.0,
		"temp_f":    55.0,
		"condition": "clear",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "unexpected tool error: %+v", result.Content)

	text := result.Content[0].(mcplib.TextContent).Text
	var payload struct {
		Artifact struct {
			Kind string `json:"kind"`
		} `json:"artifact"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, "daily_workout", payload.Artifact.Kind)
}

func TestHandleRunLogTool(t *testing.T) {
	s := newTestMCP(t)

	// Seed one execution through the plan tool.
	_, err := s.handleGeneratePlan(context.Background(), callTool(map[string]any{
		"goal_race":      "10k",
		"goal_date":      time.Now().UTC().AddDate(0, 2, 0).Format("2006-01-02"),
		"weekly_mileage": 12.0,
	}))
	require.NoError(t, err)

	result, err := s.handleRunLog(context.Background(), callTool(map[string]any{"limit": 5.0}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := result.Content[0].(mcplib.TextContent).Text
	var payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	assert.Equal(t, 1, payload.Count)
}

func TestSplitFlags(t *testing.T) {
	assert.Nil(t, splitFlags(""))
	assert.Nil(t, splitFlags("  "))
	assert.Equal(t, []string{"shin splints", "tight calf"}, splitFlags("shin splints, tight calf"))
	assert.Equal(t, []string{"knee pain"}, splitFlags("knee pain,"))
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2026-09-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("next tuesday")
	require.Error(t, err)
}
