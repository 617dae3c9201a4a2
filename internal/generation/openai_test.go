package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testProfile() model.RunnerProfile {
	return model.RunnerProfile{
		GoalRace:      "half marathon",
		GoalDate:      time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		WeeklyMileage: 20,
		LongestRun:    8,
		BaselinePace:  9.5,
	}
}

// chatServer returns an httptest server that replies to every request with
// the given message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}, "finish_reason": "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestGenerator(baseURL string) *OpenAIGenerator {
	return NewOpenAIGenerator(OpenAIConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, testLogger())
}

func TestGeneratePlan(t *testing.T) {
	planJSON := `{"weeks":[
		{"index":1,"phase":"base","total_mileage":7,"days":[
			{"day":"Mon","type":"rest","distance_mi":0},
			{"day":"Tue","type":"easy","distance_mi":3,"pace_low":9.0,"pace_high":9.75},
			{"day":"Wed","type":"easy","distance_mi":4,"pace_low":9.0,"pace_high":9.75}
		]}
	]}`
	srv := chatServer(t, planJSON)
	defer srv.Close()

	gen := newTestGenerator(srv.URL)
	start := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC) // a Monday
	out, err := gen.Generate(context.Background(), Prompt{
		Task:      TaskPlan,
		Profile:   testProfile(),
		Weeks:     1,
		StartDate: start,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Plan)
	assert.Nil(t, out.Workout)
	assert.JSONEq(t, planJSON, string(out.Raw))

	require.Len(t, out.Plan.Weeks, 1)
	week := out.Plan.Weeks[0]
	assert.Equal(t, 1, week.Index)
	assert.Equal(t, model.PhaseBase, week.Phase)
	require.Len(t, week.Days, 3)
	assert.Equal(t, start, week.Days[0].Date)
	assert.Equal(t, start.AddDate(0, 0, 2), week.Days[2].Date)
	assert.Equal(t, "half marathon", out.Plan.GoalRace)
	require.NoError(t, out.Plan.Validate())
}

func TestGenerateWorkout(t *testing.T) {
	srv := chatServer(t, `{"type":"easy","distance_mi":3.5,"pace_low":9.5,"pace_high":10.25,"rationale":"reduced for fatigue"}`)
	defer srv.Close()

	scheduled := &model.DailyWorkout{
		Date: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		Day:  "Wed",
		Type: model.WorkoutTempo,
	}
	gen := newTestGenerator(srv.URL)
	out, err := gen.Generate(context.Background(), Prompt{
		Task:      TaskAdjust,
		Profile:   testProfile(),
		Scheduled: scheduled,
		Context:   &model.AdjustmentContext{Date: scheduled.Date, Fatigue: 8},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Workout)
	assert.Nil(t, out.Plan)

	assert.Equal(t, model.WorkoutEasy, out.Workout.Type)
	assert.Equal(t, 3.5, out.Workout.Distance)
	assert.Equal(t, scheduled.Date, out.Workout.Date)
	assert.Equal(t, "Wed", out.Workout.Day)
}

func TestGenerateRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "", "refusal": "cannot advise on this"}, "finish_reason": "stop"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gen := newTestGenerator(srv.URL)
	_, err := gen.Generate(context.Background(), Prompt{Task: TaskPlan, Profile: testProfile(), Weeks: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrGenerationRefused)
}

func TestGenerateMalformedContent(t *testing.T) {
	srv := chatServer(t, `here is your plan: run a lot`)
	defer srv.Close()

	gen := newTestGenerator(srv.URL)
	_, err := gen.Generate(context.Background(), Prompt{Task: TaskPlan, Profile: testProfile(), Weeks: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 20 * time.Millisecond,
	}, testLogger())
	_, err := gen.Generate(context.Background(), Prompt{Task: TaskPlan, Profile: testProfile(), Weeks: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrGenerationTimeout)
}

func TestGenerateBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gen := newTestGenerator(srv.URL)
	_, err := gen.Generate(context.Background(), Prompt{Task: TaskPlan, Profile: testProfile(), Weeks: 4})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrGenerationRefused)
}
