package runlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline-ai/stride/internal/model"
)

func sampleEntry(kind model.RequestKind, ts time.Time) model.RunLogEntry {
	return model.RunLogEntry{
		ID:          uuid.New(),
		Timestamp:   ts,
		RequestKind: kind,
		Profile:     model.RunnerProfile{GoalRace: "10k", WeeklyMileage: 15},
		Evidence: []model.Evidence{
			{Source: "daniels.md#3", Text: "ten percent", Score: 0.8, Rank: 1},
		},
		RawOutput: []byte(`{"weeks":[]}`),
		Verdict:   model.SafetyVerdict{Outcome: model.VerdictApproved, Explanation: "ok"},
		Artifact:  []byte(`{"kind":"training_plan","artifact":{}}`),
	}
}

func TestMemoryAppendAssignsSeqAndChain(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := store.Append(ctx, sampleEntry(model.RequestGeneratePlan, now))
	require.NoError(t, err)
	second, err := store.Append(ctx, sampleEntry(model.RequestAdjustToday, now.Add(time.Second)))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.NotEmpty(t, first.ChainHash)
	assert.NotEqual(t, first.ChainHash, second.ChainHash)

	entries, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, VerifyChain(entries))
}

func TestMemoryQueryFilters(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 4; i++ {
		kind := model.RequestGeneratePlan
		if i%2 == 1 {
			kind = model.RequestAdjustToday
		}
		_, err := store.Append(ctx, sampleEntry(kind, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	plans, err := store.Query(ctx, Filter{Kind: model.RequestGeneratePlan})
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	recent, err := store.Query(ctx, Filter{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := store.Query(ctx, Filter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
	assert.Equal(t, int64(1), limited[0].Seq, "commit order, oldest first")
}

func TestMemoryConcurrentAppends(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, sampleEntry(model.RequestGeneratePlan, time.Now().UTC()))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, n, "no entry lost")
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	require.NoError(t, VerifyChain(entries))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, sampleEntry(model.RequestGeneratePlan, time.Now().UTC()))
		require.NoError(t, err)
	}
	entries, err := store.Query(ctx, Filter{})
	require.NoError(t, err)

	entries[1].Profile.WeeklyMileage = 99
	err = VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken at seq 2")
}
