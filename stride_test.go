package stride

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/testutil"
)

type stubRetriever struct{}

func (stubRetriever) Search(ctx context.Context, query, domain string, k int) ([]Evidence, error) {
	return []Evidence{
		{Source: "daniels.md#3", Text: "increase weekly volume by no more than ten percent", Score: 0.81, Rank: 1},
		{Source: "pfitzinger.md#7", Text: "keep the long run near a third of the weekly total", Score: 0.72, Rank: 2},
	}, nil
}

func (stubRetriever) Healthy(ctx context.Context) error { return nil }

// stubGenerator returns a fixed four-week plan that satisfies the default
// safety thresholds for a 20 mile per week runner.
type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, system, user string) ([]byte, error) {
	week := `{"index":%d,"phase":"base","total_mileage":18,"days":[` +
		`{"day":"Mon","type":"easy","distance_mi":4.5},` +
		`{"day":"Wed","type":"easy","distance_mi":4.5},` +
		`{"day":"Fri","type":"easy","distance_mi":4},` +
		`{"day":"Sat","type":"long","distance_mi":5}]}`
	raw := `{"weeks":[`
	for i := 1; i <= 4; i++ {
		if i > 1 {
			raw += ","
		}
		raw += fmt.Sprintf(week, i)
	}
	raw += `]}`
	return []byte(raw), nil
}

func newTestApp(t *testing.T, extra ...Option) *App {
	t.Helper()
	t.Setenv("STRIDE_RUNLOG_BACKEND", "memory")
	t.Setenv("QDRANT_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	opts := append([]Option{
		WithLogger(testutil.TestLogger()),
		WithRetriever(stubRetriever{}),
		WithGenerator(stubGenerator{}),
	}, extra...)
	app, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func testPlanRequest() PlanRequest {
	return PlanRequest{
		GoalRace:      "half marathon",
		GoalDate:      time.Now().UTC().AddDate(0, 3, 0),
		WeeklyMileage: 20,
		LongestRun:    8,
		BaselinePace:  9.5,
	}
}

func TestGeneratePlanPublicAPI(t *testing.T) {
	app := newTestApp(t)

	result, err := app.GeneratePlan(context.Background(), testPlanRequest())
	require.NoError(t, err)

	var artifact struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(result.Artifact, &artifact))
	assert.Equal(t, "training_plan", artifact.Kind)
	assert.Equal(t, VerdictApproved, result.Verdict.Outcome)
	assert.Len(t, result.Evidence, 2)

	entries, err := app.RunLog(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "GENERATE_PLAN", entries[0].RequestKind)
	assert.NotEmpty(t, entries[0].ChainHash)

	var profile struct {
		GoalRace string `json:"goal_race"`
	}
	require.NoError(t, json.Unmarshal(entries[0].Profile, &profile))
	assert.Equal(t, "half marathon", profile.GoalRace)
}

func TestWithSafetyRulesOverride(t *testing.T) {
	rules := DefaultSafetyRules()
	rules.MinEvidence = 3 // the stub retriever only produces two passages

	app := newTestApp(t, WithSafetyRules(rules))

	result, err := app.GeneratePlan(context.Background(), testPlanRequest())
	require.NoError(t, err)

	var artifact struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(result.Artifact, &artifact))
	assert.Equal(t, "fallback", artifact.Kind)
}

// memRunLogStore is a minimal external store used to exercise the
// WithRunLogStore adapter in both directions.
type memRunLogStore struct {
	mu      sync.Mutex
	entries []RunLogEntry
}

func (m *memRunLogStore) Append(ctx context.Context, entry RunLogEntry) (RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Seq = int64(len(m.entries) + 1)
	entry.ChainHash = fmt.Sprintf("external-%d", entry.Seq)
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memRunLogStore) Query(ctx context.Context, kind string, since time.Time, limit int) ([]RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunLogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if kind != "" && e.RequestKind != kind {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRunLogStore) Close() error { return nil }

func TestWithRunLogStore(t *testing.T) {
	store := &memRunLogStore{}
	app := newTestApp(t, WithRunLogStore(store))

	_, err := app.GeneratePlan(context.Background(), testPlanRequest())
	require.NoError(t, err)

	require.Len(t, store.entries, 1)

	entries, err := app.RunLog(context.Background(), "GENERATE_PLAN", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "external-1", entries[0].ChainHash)
	assert.Equal(t, int64(1), entries[0].Seq)
}

func TestHandlerHealth(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDefaultSafetyRules(t *testing.T) {
	rules := DefaultSafetyRules()
	assert.Equal(t, 2, rules.MinEvidence)
	assert.Equal(t, 0.10, rules.OverloadCapPct)
	assert.InDelta(t, 0.25, float64(rules.RelevanceFloor), 1e-9)
}
