package featurestore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

// gatedIndex stalls EnsureCollection for one collection until released,
// simulating a hung backend during collection creation.
type gatedIndex struct {
	vectorindex.Index

	gated   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedIndex) EnsureCollection(ctx context.Context, name string, metadata map[string]string) error {
	if name == g.gated {
		close(g.entered)
		<-g.release
	}
	return g.Index.EnsureCollection(ctx, name, metadata)
}

func newTestIndex(t *testing.T) vectorindex.Index {
	t.Helper()

	idx, err := vectorindex.NewChromemIndex(vectorindex.ChromemConfig{
		Path:      filepath.Join(t.TempDir(), "index"),
		Dimension: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestRouter_Resolve(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	name, err := router.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user_alice_voice_features", name)

	// Idempotent.
	again, err := router.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, name, again)

	names, err := idx.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestRouter_Resolve_InvalidTenant(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())

	_, err := router.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = router.Resolve(context.Background(), "Bad Tenant!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRouter_Resolve_Concurrent(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := router.Resolve(ctx, "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	names, err := idx.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 1, "concurrent first-calls must not create duplicates")
}

func TestRouter_Resolve_SlowTenantDoesNotBlockOthers(t *testing.T) {
	idx := &gatedIndex{
		Index:   newTestIndex(t),
		gated:   "user_slow_voice_features",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	_, err := router.Resolve(ctx, "fast")
	require.NoError(t, err)

	slowDone := make(chan error, 1)
	go func() {
		_, rerr := router.Resolve(ctx, "slow")
		slowDone <- rerr
	}()
	<-idx.entered

	// With "slow" parked inside the adapter, "fast" must still resolve.
	fastDone := make(chan error, 1)
	go func() {
		_, rerr := router.Resolve(ctx, "fast")
		fastDone <- rerr
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cached resolve blocked behind another tenant's collection creation")
	}

	close(idx.release)
	require.NoError(t, <-slowDone)
}

func TestRouter_Lookup(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	_, exists, err := router.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = router.Resolve(ctx, "alice")
	require.NoError(t, err)

	name, exists, err := router.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "user_alice_voice_features", name)
}

func TestRouter_Rediscovery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	first := NewRouter(idx, zap.NewNop())
	_, err := first.Resolve(ctx, "alice")
	require.NoError(t, err)

	// A fresh router over the same index finds the collection on disk.
	second := NewRouter(idx, zap.NewNop())
	_, exists, err := second.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRouter_Tenants(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	tenants, err := router.Tenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	_, err = router.Resolve(ctx, "bob")
	require.NoError(t, err)
	_, err = router.Resolve(ctx, "alice")
	require.NoError(t, err)

	// A collection outside the naming pattern is ignored.
	require.NoError(t, idx.EnsureCollection(ctx, "internal_bookkeeping", nil))

	tenants, err = router.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, tenants)
}

func TestRouter_Forget(t *testing.T) {
	idx := newTestIndex(t)
	router := NewRouter(idx, zap.NewNop())
	ctx := context.Background()

	name, err := router.Resolve(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, idx.DropCollection(ctx, name))

	router.Forget("alice")

	_, exists, err := router.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}
