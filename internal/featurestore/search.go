package featurestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

// Default search parameters.
const (
	DefaultThreshold = 0.6
	DefaultTopK      = 10

	// fanoutConcurrency bounds parallel per-tenant queries during a
	// cross-tenant search.
	fanoutConcurrency = 8
)

// Searcher executes nearest-neighbor queries against one tenant's collection
// or fans out across every known tenant.
//
// The adapter reports cosine distance in [0, 2]; similarity is 1 - d/2 in
// [0, 1], higher is more similar. Results with equal similarity keep the
// order the underlying index returned them in.
type Searcher struct {
	router  *Router
	index   vectorindex.Index
	logger  *zap.Logger
	metrics *Metrics
}

// NewSearcher creates a Searcher.
func NewSearcher(router *Router, index vectorindex.Index, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		router:  router,
		index:   index,
		logger:  logger,
		metrics: NewMetrics(),
	}
}

// Similarity converts a cosine distance in [0, 2] to a similarity in [0, 1].
func Similarity(distance float32) float32 {
	return 1 - distance/2
}

// SearchTenant queries one tenant's collection for up to topK nearest
// neighbors at or above the threshold, ranked descending by similarity.
// A tenant with no collection yields an empty result, not an error.
func (s *Searcher) SearchTenant(ctx context.Context, tenantID string, query []float32, threshold float32, topK int) (matches []Match, err error) {
	ctx, span := tracer.Start(ctx, "Searcher.SearchTenant")
	defer span.End()
	defer func() { s.metrics.RecordOperation("search_tenant", err) }()

	start := time.Now()
	defer func() { s.metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Float64("threshold", float64(threshold)),
		attribute.Int("top_k", topK),
	)

	if err = s.validate(query, threshold, topK); err != nil {
		return nil, err
	}

	matches, err = s.queryTenant(ctx, tenantID, query, threshold, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// SearchAll fans out across every known tenant's collection, filters each
// batch by the threshold, merges all survivors, and returns the global topK
// by similarity. A failing tenant is logged and skipped so the search
// degrades gracefully instead of failing wholesale.
func (s *Searcher) SearchAll(ctx context.Context, query []float32, threshold float32, topK int) (matches []Match, err error) {
	ctx, span := tracer.Start(ctx, "Searcher.SearchAll")
	defer span.End()
	defer func() { s.metrics.RecordOperation("search_all", err) }()

	start := time.Now()
	defer func() { s.metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	span.SetAttributes(
		attribute.Float64("threshold", float64(threshold)),
		attribute.Int("top_k", topK),
	)

	if err = s.validate(query, threshold, topK); err != nil {
		return nil, err
	}

	tenants, err := s.router.Tenants(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.SearchFanout.Observe(float64(len(tenants)))
	span.SetAttributes(attribute.Int("tenant_count", len(tenants)))

	var (
		mu  sync.Mutex
		all []Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)

	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			batch, qerr := s.queryTenant(gctx, tenantID, query, threshold, topK)
			if qerr != nil {
				// Partial failure: skip this tenant, keep the rest.
				s.logger.Warn("skipping tenant during fan-out search",
					zap.String("tenant_id", tenantID),
					zap.Error(qerr),
				)
				return nil
			}
			mu.Lock()
			all = append(all, batch...)
			mu.Unlock()
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	if len(all) > topK {
		all = all[:topK]
	}

	span.SetAttributes(attribute.Int("results_count", len(all)))
	span.SetStatus(codes.Ok, "success")
	return all, nil
}

// queryTenant runs the per-collection query and filters by threshold.
func (s *Searcher) queryTenant(ctx context.Context, tenantID string, query []float32, threshold float32, topK int) ([]Match, error) {
	collection, exists, err := s.router.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	results, err := s.index.Query(ctx, collection, query, topK)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: querying collection %s: %v", ErrStorageUnavailable, collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		similarity := Similarity(res.Distance)
		if similarity < threshold {
			continue
		}
		personName, relationship, isSelf, createdAt := decodeMatchMetadata(res.Metadata)
		matches = append(matches, Match{
			TenantID:     tenantID,
			RecordID:     res.ID,
			PersonName:   personName,
			Relationship: relationship,
			IsSelf:       isSelf,
			Similarity:   similarity,
			Distance:     res.Distance,
			CreatedAt:    createdAt,
		})
	}
	return matches, nil
}

func (s *Searcher) validate(query []float32, threshold float32, topK int) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v out of [0,1]", ErrInvalidInput, threshold)
	}
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidInput)
	}
	if len(query) != s.index.Dimension() {
		return fmt.Errorf("%w: dimension %d, expected %d", ErrInvalidVector, len(query), s.index.Dimension())
	}
	return nil
}
