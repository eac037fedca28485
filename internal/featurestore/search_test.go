package featurestore

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vecWithCosine builds a unit vector whose cosine with the probe vector
// (1,0,0,0) equals cos.
func vecWithCosine(cos float64) []float32 {
	sin := math.Sqrt(1 - cos*cos)
	return []float32{float32(cos), float32(sin), 0, 0}
}

var probe = []float32{1, 0, 0, 0}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(0), 1e-6)
	assert.InDelta(t, 0.5, Similarity(1), 1e-6)
	assert.InDelta(t, 0.0, Similarity(2), 1e-6)
}

func TestSearcher_SearchTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Repo.Add(ctx, "alice", "Bob", "friend", probe)
	require.NoError(t, err)
	_, err = store.Repo.Add(ctx, "alice", "Carol", "sister", []float32{0, 1, 0, 0})
	require.NoError(t, err)

	matches, err := store.Search.SearchTenant(ctx, "alice", probe, 0, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Identical vector first at similarity 1, orthogonal at 0.5.
	assert.Equal(t, "Bob", matches[0].PersonName)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-4)
	assert.Equal(t, "alice", matches[0].TenantID)
	assert.NotEmpty(t, matches[0].RecordID)
	assert.False(t, matches[0].IsSelf)
	assert.False(t, matches[0].CreatedAt.IsZero())

	assert.Equal(t, "Carol", matches[1].PersonName)
	assert.InDelta(t, 0.5, matches[1].Similarity, 1e-4)
}

func TestSearcher_SearchTenant_Threshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Repo.Add(ctx, "alice", "Bob", "friend", probe)
	require.NoError(t, err)
	_, err = store.Repo.Add(ctx, "alice", "Carol", "sister", []float32{0, 1, 0, 0})
	require.NoError(t, err)

	matches, err := store.Search.SearchTenant(ctx, "alice", probe, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Bob", matches[0].PersonName)
}

func TestSearcher_ThresholdMonotonicity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, cos := range []float64{0.95, 0.8, 0.5, 0.1, -0.5} {
		_, err := store.Repo.Add(ctx, "alice", fmt.Sprintf("p%d", i), "friend", vecWithCosine(cos))
		require.NoError(t, err)
	}

	var prev []Match
	for _, threshold := range []float32{0.9, 0.7, 0.5, 0.2, 0} {
		matches, err := store.Search.SearchTenant(ctx, "alice", probe, threshold, 10)
		require.NoError(t, err)

		// Lowering the threshold only ever adds results.
		if prev != nil {
			assert.GreaterOrEqual(t, len(matches), len(prev))
			for i := range prev {
				assert.Equal(t, prev[i].RecordID, matches[i].RecordID)
			}
		}
		prev = matches
	}
}

func TestSearcher_SearchTenant_NoCollection(t *testing.T) {
	store := newTestStore(t)

	matches, err := store.Search.SearchTenant(context.Background(), "ghost", probe, 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "no match found is a valid outcome")
}

func TestSearcher_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Search.SearchTenant(ctx, "alice", probe, 0.5, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Search.SearchTenant(ctx, "alice", []float32{1, 0}, 0.5, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = store.Search.SearchAll(ctx, []float32{1, 0}, 0.5, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVector)

	// Threshold outside [0,1] is rejected at the core, not just the API.
	_, err = store.Search.SearchTenant(ctx, "alice", probe, -0.5, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = store.Search.SearchAll(ctx, probe, 1.5, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearcher_FanOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Three tenants, each with two candidates above the 0.9 similarity
	// threshold (cosine >= 0.8).
	cosines := map[string][]float64{
		"t1": {0.99, 0.96},
		"t2": {0.98, 0.94},
		"t3": {0.92, 0.90},
	}
	for tenantID, cc := range cosines {
		for i, cos := range cc {
			_, err := store.Repo.Add(ctx, tenantID, fmt.Sprintf("p%d", i), "friend", vecWithCosine(cos))
			require.NoError(t, err)
		}
	}

	matches, err := store.Search.SearchAll(ctx, probe, 0.9, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3, "global top_k truncates the pooled candidates")

	// Pool of six survivors, global top 3 by similarity (1+cos)/2.
	assert.InDelta(t, (1+0.99)/2, float64(matches[0].Similarity), 1e-3)
	assert.Equal(t, "t1", matches[0].TenantID)
	assert.InDelta(t, (1+0.98)/2, float64(matches[1].Similarity), 1e-3)
	assert.Equal(t, "t2", matches[1].TenantID)
	assert.InDelta(t, (1+0.96)/2, float64(matches[2].Similarity), 1e-3)
	assert.Equal(t, "t1", matches[2].TenantID)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
}

func TestSearcher_FanOut_SkipsFailingTenant(t *testing.T) {
	store, idx := newFaultyStore(t)
	ctx := context.Background()

	_, err := store.Repo.Add(ctx, "good", "Bob", "friend", vecWithCosine(0.99))
	require.NoError(t, err)
	_, err = store.Repo.Add(ctx, "good", "Carol", "sister", vecWithCosine(0.95))
	require.NoError(t, err)
	_, err = store.Repo.Add(ctx, "bad", "Dan", "friend", vecWithCosine(0.97))
	require.NoError(t, err)

	idx.failQueryFor["user_bad_voice_features"] = true

	// The failing tenant is skipped; the survivors' matches come back.
	matches, err := store.Search.SearchAll(ctx, probe, 0.9, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "good", m.TenantID)
	}
}

func TestSearcher_FanOut_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	matches, err := store.Search.SearchAll(context.Background(), probe, 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearcher_FanOut_Isolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Repo.Add(ctx, "alice", "Bob", "friend", probe)
	require.NoError(t, err)
	_, err = store.Repo.Add(ctx, "carol", "Dan", "friend", probe)
	require.NoError(t, err)

	matches, err := store.Search.SearchAll(ctx, probe, 0.9, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Every match carries its owning tenant.
	tenants := map[string]bool{}
	for _, m := range matches {
		tenants[m.TenantID] = true
	}
	assert.True(t, tenants["alice"])
	assert.True(t, tenants["carol"])
}
