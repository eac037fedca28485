package featurestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/featurecache"
	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

var tracer = otel.Tracer("voiced.featurestore")

// Repository owns the record schema and all mutation operations. Records are
// created via Add, never updated in place, and destroyed only via the delete
// operations or a whole-store reset.
//
// Every mutation invalidates the owning tenant's read cache entry.
type Repository struct {
	router  *Router
	index   vectorindex.Index
	cache   *featurecache.Cache
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewRepository creates a Repository. The cache is optional; a nil cache
// disables read caching without changing results.
func NewRepository(router *Router, index vectorindex.Index, cache *featurecache.Cache, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		router:  router,
		index:   index,
		cache:   cache,
		logger:  logger,
		metrics: NewMetrics(),
		now:     time.Now,
	}
}

// Add stores one feature record for a tenant and returns the generated
// record id. IsSelf is derived from the relationship label. The write is
// atomic: on error nothing is visible.
func (r *Repository) Add(ctx context.Context, tenantID, personName, relationship string, embedding []float32) (recordID string, err error) {
	ctx, span := tracer.Start(ctx, "Repository.Add")
	defer span.End()
	defer func() { r.metrics.RecordOperation("add", err) }()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	personName = strings.TrimSpace(personName)
	if personName == "" {
		return "", fmt.Errorf("%w: person name required", ErrInvalidInput)
	}
	if len(embedding) != r.index.Dimension() {
		return "", fmt.Errorf("%w: dimension %d, expected %d", ErrInvalidVector, len(embedding), r.index.Dimension())
	}

	collection, err := r.router.Resolve(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	rec := FeatureRecord{
		ID:           uuid.New().String(),
		UserID:       tenantID,
		PersonName:   personName,
		Relationship: relationship,
		IsSelf:       IsSelfRelationship(relationship),
		Embedding:    embedding,
		CreatedAt:    r.now().UTC(),
	}

	err = r.index.Insert(ctx, collection, []vectorindex.Record{{
		ID:       rec.ID,
		Vector:   rec.Embedding,
		Metadata: encodeMetadata(rec),
	}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: inserting record: %v", ErrStorageUnavailable, err)
	}

	r.invalidate(tenantID)
	r.metrics.RecordsWritten.Inc()

	r.logger.Info("feature record added",
		zap.String("tenant_id", tenantID),
		zap.String("record_id", rec.ID),
		zap.String("person_name", personName),
		zap.Bool("is_self", rec.IsSelf),
	)

	span.SetStatus(codes.Ok, "success")
	return rec.ID, nil
}

// DeleteAllForTenant removes every record in the tenant's collection and
// returns the number deleted. A tenant with no collection or no records
// yields 0, not an error.
func (r *Repository) DeleteAllForTenant(ctx context.Context, tenantID string) (deleted int, err error) {
	ctx, span := tracer.Start(ctx, "Repository.DeleteAllForTenant")
	defer span.End()
	defer func() { r.metrics.RecordOperation("delete_all", err) }()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	records, err := r.tenantRecords(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}

	collection, _, err := r.router.Lookup(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if err = r.index.Delete(ctx, collection, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: deleting records: %v", ErrStorageUnavailable, err)
	}

	r.invalidate(tenantID)
	r.metrics.RecordsDeleted.Add(float64(len(ids)))

	r.logger.Info("deleted all tenant records",
		zap.String("tenant_id", tenantID),
		zap.Int("count", len(ids)),
	)
	span.SetStatus(codes.Ok, "success")
	return len(ids), nil
}

// DeleteByPerson removes every non-self record whose person name matches
// exactly, returning the number deleted. Self records are never deleted by
// this path; removing the tenant's own voice requires DeleteAllForTenant.
func (r *Repository) DeleteByPerson(ctx context.Context, tenantID, personName string) (deleted int, err error) {
	ctx, span := tracer.Start(ctx, "Repository.DeleteByPerson")
	defer span.End()
	defer func() { r.metrics.RecordOperation("delete_person", err) }()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("person_name", personName),
	)

	personName = strings.TrimSpace(personName)
	if personName == "" {
		return 0, fmt.Errorf("%w: person name required", ErrInvalidInput)
	}

	records, err := r.tenantRecords(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	var ids []string
	for _, rec := range records {
		if !rec.IsSelf && rec.PersonName == personName {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	collection, _, err := r.router.Lookup(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if err = r.index.Delete(ctx, collection, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("%w: deleting records: %v", ErrStorageUnavailable, err)
	}

	r.invalidate(tenantID)
	r.metrics.RecordsDeleted.Add(float64(len(ids)))

	r.logger.Info("deleted person records",
		zap.String("tenant_id", tenantID),
		zap.String("person_name", personName),
		zap.Int("count", len(ids)),
	)
	span.SetStatus(codes.Ok, "success")
	return len(ids), nil
}

// ListPersons groups a tenant's non-self records by person name. The
// relationship reported per person is the one on the earliest record, and
// summaries are sorted by person name.
func (r *Repository) ListPersons(ctx context.Context, tenantID string) (persons []PersonSummary, err error) {
	ctx, span := tracer.Start(ctx, "Repository.ListPersons")
	defer span.End()
	defer func() { r.metrics.RecordOperation("list_persons", err) }()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	records, err := r.tenantRecords(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return summarizePersons(records), nil
}

// GetAllGrouped returns a tenant's embeddings grouped by person, with self
// records under the fixed self group key. Served from the read cache when
// warm; the cache never changes results, only latency.
func (r *Repository) GetAllGrouped(ctx context.Context, tenantID string) (groups map[string][][]float32, err error) {
	ctx, span := tracer.Start(ctx, "Repository.GetAllGrouped")
	defer span.End()
	defer func() { r.metrics.RecordOperation("get_all_grouped", err) }()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if r.cache != nil {
		if entry, ok := r.cache.Get(tenantID); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return entry.Groups, nil
		}
	}

	records, err := r.tenantRecords(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	groups = make(map[string][][]float32)
	for _, rec := range records {
		key := rec.GroupKey()
		groups[key] = append(groups[key], rec.Embedding)
	}

	if r.cache != nil {
		r.cache.Put(tenantID, groups)
	}
	return groups, nil
}

// Reset drops every tenant collection and clears the read cache, returning
// the number of collections dropped.
func (r *Repository) Reset(ctx context.Context) (dropped int, err error) {
	ctx, span := tracer.Start(ctx, "Repository.Reset")
	defer span.End()
	defer func() { r.metrics.RecordOperation("reset", err) }()

	tenants, err := r.router.Tenants(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, tenantID := range tenants {
		collection, _, err := r.router.Lookup(ctx, tenantID)
		if err != nil {
			return dropped, err
		}
		if err := r.index.DropCollection(ctx, collection); err != nil {
			return dropped, fmt.Errorf("%w: dropping collection %s: %v", ErrStorageUnavailable, collection, err)
		}
		dropped++
	}

	r.router.Reset()
	if r.cache != nil {
		r.cache.Clear()
	}

	r.logger.Info("storage reset", zap.Int("collections_dropped", dropped))
	span.SetStatus(codes.Ok, "success")
	return dropped, nil
}

// tenantRecords reads every record for a tenant, decoding metadata. A tenant
// with no collection yields an empty slice.
func (r *Repository) tenantRecords(ctx context.Context, tenantID string) ([]FeatureRecord, error) {
	collection, exists, err := r.router.Lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	raw, err := r.index.GetAll(ctx, collection)
	if err != nil {
		if errors.Is(err, vectorindex.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading collection %s: %v", ErrStorageUnavailable, collection, err)
	}

	records := make([]FeatureRecord, len(raw))
	for i, rec := range raw {
		records[i] = decodeRecord(rec)
	}
	return records, nil
}

func (r *Repository) invalidate(tenantID string) {
	if r.cache != nil {
		r.cache.Invalidate(tenantID)
	}
}

// summarizePersons groups non-self records into sorted per-person summaries.
func summarizePersons(records []FeatureRecord) []PersonSummary {
	type group struct {
		relationship string
		count        int
		earliest     time.Time
	}
	groups := make(map[string]*group)

	for _, rec := range records {
		if rec.IsSelf {
			continue
		}
		g, ok := groups[rec.PersonName]
		if !ok {
			groups[rec.PersonName] = &group{
				relationship: rec.Relationship,
				count:        1,
				earliest:     rec.CreatedAt,
			}
			continue
		}
		g.count++
		if rec.CreatedAt.Before(g.earliest) {
			g.earliest = rec.CreatedAt
			g.relationship = rec.Relationship
		}
	}

	persons := make([]PersonSummary, 0, len(groups))
	for name, g := range groups {
		persons = append(persons, PersonSummary{
			PersonName:     name,
			Relationship:   g.relationship,
			AudioCount:     g.count,
			FirstCreatedAt: g.earliest,
		})
	}
	sort.Slice(persons, func(i, j int) bool {
		return persons[i].PersonName < persons[j].PersonName
	})
	return persons
}
