package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/api"
	"github.com/paceline-ai/stride/internal/config"
	"github.com/paceline-ai/stride/internal/generation"
	"github.com/paceline-ai/stride/internal/guard"
	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/runlog"
	"github.com/paceline-ai/stride/internal/testutil"
	"github.com/paceline-ai/stride/internal/workflow"
)

// stubRetriever serves fixed evidence.
type stubRetriever struct {
	evidence []model.Evidence
	err      error
}

func (s *stubRetriever) Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.evidence, nil
}

func (s *stubRetriever) Healthy(ctx context.Context) error { return s.err }

// stubGenerator builds a structurally valid output from the prompt itself,
// so tests do not depend on the wall clock.
type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt generation.Prompt) (generation.Output, error) {
	if prompt.Task == generation.TaskAdjust {
		w := *prompt.Scheduled
		w.Rationale = "as scheduled"
		return generation.Output{Workout: &w, Raw: []byte(`{"type":"` + string(w.Type) + `"}`)}, nil
	}
	plan := &model.TrainingPlan{
		GoalRace:  prompt.Profile.GoalRace,
		GoalDate:  prompt.Profile.GoalDate,
		StartDate: prompt.StartDate,
	}
	for i := 0; i < prompt.Weeks; i++ {
		plan.Weeks = append(plan.Weeks, model.WeekPlan{
			Index:        i + 1,
			Phase:        model.PhaseBase,
			TotalMileage: 18,
			Days: []model.DailyWorkout{
				{Date: prompt.StartDate.AddDate(0, 0, i*7), Day: "Mon", Type: model.WorkoutEasy, Distance: 4.5},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+2), Day: "Wed", Type: model.WorkoutEasy, Distance: 4.5},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+4), Day: "Fri", Type: model.WorkoutEasy, Distance: 4},
				{Date: prompt.StartDate.AddDate(0, 0, i*7+5), Day: "Sat", Type: model.WorkoutLong, Distance: 5},
			},
		})
	}
	return generation.Output{Plan: plan, Raw: []byte(`{"weeks":[]}`)}, nil
}

func sampleEvidence() []model.Evidence {
	return []model.Evidence{
		{Source: "daniels.md#3", Text: "ten percent rule", Score: 0.8, Rank: 1},
		{Source: "pfitzinger.md#7", Text: "long run share", Score: 0.7, Rank: 2},
	}
}

func newTestServer(t *testing.T, ret *stubRetriever) (*Server, runlog.Store) {
	t.Helper()
	logger := testutil.TestLogger()
	rules := config.DefaultRules()
	store := runlog.NewMemory()
	t.Cleanup(func() { store.Close() })

	ports := workflow.Ports{Retriever: ret, Generator: stubGenerator{}}
	router := workflow.NewRouter(
		workflow.NewPlanner(ports, rules, logger),
		workflow.NewAdjuster(ports, rules, logger),
		guard.NewHallucination(rules, logger),
		guard.NewSafety(rules, logger),
		store, logger,
	)
	srv := New(Config{
		Router:      router,
		RunLog:      store,
		Retriever:   ret,
		Logger:      logger,
		Version:     "test",
		OpenAPISpec: api.OpenAPISpec,
	})
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func testProfileBody() map[string]any {
	return map[string]any{
		"goal_race":      "half marathon",
		"goal_date":      time.Now().UTC().AddDate(0, 3, 0).Format(time.RFC3339),
		"weekly_mileage": 18,
		"longest_run":    7,
		"baseline_pace":  9.5,
	}
}

func TestHandlePlan(t *testing.T) {
	srv, store := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodPost, "/v1/plan", map[string]any{"profile": testProfileBody()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		Data struct {
			Artifact struct {
				Kind string `json:"kind"`
			} `json:"artifact"`
			Verdict model.SafetyVerdict `json:"verdict"`
		} `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "training_plan", resp.Data.Artifact.Kind)
	assert.Equal(t, model.VerdictApproved, resp.Data.Verdict.Outcome)
	assert.NotEmpty(t, resp.Meta.RequestID)

	entries, err := store.Query(context.Background(), runlog.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandlePlanBadBody(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeBadRequest, resp.Error.Code)
}

func TestHandlePlanUpstreamUnavailable(t *testing.T) {
	srv, store := newTestServer(t, &stubRetriever{err: model.ErrIndexUnavailable})

	rec := doJSON(t, srv, http.MethodPost, "/v1/plan", map[string]any{"profile": testProfileBody()})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeUpstream, resp.Error.Code)

	entries, err := store.Query(context.Background(), runlog.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "failed requests leave no run-log entry")
}

func TestHandleAdjust(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	plan := map[string]any{
		"goal_race":  "10k",
		"goal_date":  date.AddDate(0, 1, 0).Format(time.RFC3339),
		"start_date": date.AddDate(0, 0, -1).Format(time.RFC3339),
		"weeks": []map[string]any{{
			"index":         1,
			"phase":         "base",
			"total_mileage": 5,
			"days": []map[string]any{{
				"date":        date.Format(time.RFC3339),
				"day":         "Tue",
				"type":        "easy",
				"distance_mi": 5,
				"pace":        map[string]any{"low_min_per_mi": 9, "high_min_per_mi": 9.75},
			}},
		}},
	}
	body := map[string]any{
		"profile": testProfileBody(),
		"plan":    plan,
		"context": map[string]any{
			"date":    date.Format(time.RFC3339),
			"fatigue": 2,
			"weather": map[string]any{"temp_f": 55, "humidity": 0.5, "condition": "clear"},
		},
	}

	rec := doJSON(t, srv, http.MethodPost, "/v1/adjust", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Artifact struct {
				Kind string `json:"kind"`
			} `json:"artifact"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "daily_workout", resp.Data.Artifact.Kind)
}

func TestHandleAdjustMissingPayload(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodPost, "/v1/adjust", map[string]any{"profile": testProfileBody()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAdjustDateOutOfRange(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	body := map[string]any{
		"profile": testProfileBody(),
		"plan": map[string]any{
			"goal_race":  "10k",
			"goal_date":  date.Format(time.RFC3339),
			"start_date": date.Format(time.RFC3339),
			"weeks": []map[string]any{{
				"index":         1,
				"total_mileage": 3,
				"days": []map[string]any{{
					"date":        date.Format(time.RFC3339),
					"day":         "Tue",
					"type":        "easy",
					"distance_mi": 3,
				}},
			}},
		},
		"context": map[string]any{
			"date":    date.AddDate(1, 0, 0).Format(time.RFC3339),
			"fatigue": 2,
		},
	}

	rec := doJSON(t, srv, http.MethodPost, "/v1/adjust", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeOutOfPlanRange, resp.Error.Code)
}

func TestHandleRunLog(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodPost, "/v1/plan", map[string]any{"profile": testProfileBody()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/runlog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Count   int `json:"count"`
			Entries []struct {
				Seq         int64           `json:"seq"`
				RequestKind string          `json:"request_kind"`
				Artifact    json.RawMessage `json:"artifact"`
				ChainHash   string          `json:"chain_hash"`
			} `json:"entries"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Count)
	entry := resp.Data.Entries[0]
	assert.Equal(t, int64(1), entry.Seq)
	assert.Equal(t, "GENERATE_PLAN", entry.RequestKind)
	assert.NotEmpty(t, entry.ChainHash)
	assert.True(t, json.Valid(entry.Artifact))
}

func TestHandleRunLogBadParams(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodGet, "/v1/runlog?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/runlog?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data["status"])
	assert.Equal(t, "ok", resp.Data["retrieval"])
}

func TestServeOpenAPISpec(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{evidence: sampleEvidence()})

	rec := doJSON(t, srv, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "openapi: 3.1.0")
}

func TestHandleHealthDegraded(t *testing.T) {
	srv, _ := newTestServer(t, &stubRetriever{err: errors.New("qdrant down")})

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Data["status"])
}
