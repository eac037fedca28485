package featurestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/voiceprintlabs/voiced/internal/vectorindex"
	"github.com/voiceprintlabs/voiced/pkg/collections"
)

// Router maps tenant ids to their dedicated collections, creating each
// collection on first use.
//
// The router is owned by the store instance, not process-wide, so tests can
// construct isolated instances. Known collections are tracked in memory.
// Lazy creation is deduplicated per tenant through a singleflight group, and
// the map lock is never held across adapter I/O, so a slow creation for one
// tenant cannot stall operations on any other tenant.
type Router struct {
	index  vectorindex.Index
	logger *zap.Logger

	creating singleflight.Group // keyed by tenant id

	mu    sync.RWMutex
	known map[string]string // tenant id -> collection name
}

// NewRouter creates a Router over the given index.
func NewRouter(index vectorindex.Index, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		index:  index,
		logger: logger,
		known:  make(map[string]string),
	}
}

// Resolve returns the tenant's collection name, creating the collection on
// first use. Idempotent and safe for concurrent callers.
func (r *Router) Resolve(ctx context.Context, tenantID string) (string, error) {
	name, err := collections.ForTenant(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Fast path: collection already opened by this process.
	r.mu.RLock()
	if cached, ok := r.known[tenantID]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	// Concurrent first-calls for the same tenant collapse into one
	// EnsureCollection; other tenants proceed independently.
	resolved, err, _ := r.creating.Do(tenantID, func() (interface{}, error) {
		// Double-check under the flight: an earlier flight may have
		// finished between the fast path and Do.
		r.mu.RLock()
		cached, ok := r.known[tenantID]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		cerr := r.index.EnsureCollection(ctx, name, map[string]string{"tenant_id": tenantID})
		if cerr != nil {
			return "", fmt.Errorf("%w: opening collection for tenant %s: %v", ErrStorageUnavailable, tenantID, cerr)
		}

		r.mu.Lock()
		r.known[tenantID] = name
		r.mu.Unlock()

		r.logger.Info("opened tenant collection",
			zap.String("tenant_id", tenantID),
			zap.String("collection", name),
		)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return resolved.(string), nil
}

// Lookup returns the tenant's collection name without creating it. The
// second return reports whether the collection exists in the index.
func (r *Router) Lookup(ctx context.Context, tenantID string) (string, bool, error) {
	name, err := collections.ForTenant(tenantID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	r.mu.RLock()
	_, ok := r.known[tenantID]
	r.mu.RUnlock()
	if ok {
		return name, true, nil
	}

	// Not opened by this process; the collection may still exist on disk
	// from a previous run.
	names, err := r.index.ListCollections(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%w: listing collections: %v", ErrStorageUnavailable, err)
	}
	for _, existing := range names {
		if existing == name {
			r.mu.Lock()
			r.known[tenantID] = name
			r.mu.Unlock()
			return name, true, nil
		}
	}
	return name, false, nil
}

// Tenants returns all tenant ids with a collection in the index, sorted.
// Collections not matching the tenant naming pattern are ignored.
func (r *Router) Tenants(ctx context.Context) ([]string, error) {
	names, err := r.index.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", ErrStorageUnavailable, err)
	}

	tenants := make([]string, 0, len(names))
	for _, name := range names {
		tenantID, err := collections.TenantID(name)
		if err != nil {
			continue
		}
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// Forget drops the tenant from the in-memory map. Call after dropping the
// tenant's collection.
func (r *Router) Forget(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, tenantID)
}

// Reset clears the in-memory map. Call after a whole-store reset.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = make(map[string]string)
}
