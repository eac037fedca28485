package featurestore

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// TenantStats summarizes one tenant's records.
type TenantStats struct {
	UserID             string          `json:"user_id"`
	SelfAudioCount     int             `json:"self_audio_count"`
	TotalPersons       int             `json:"total_persons"`
	TotalAudioFeatures int             `json:"total_audio_features"`
	Persons            []PersonSummary `json:"persons"`
}

// GlobalStats summarizes the whole store. TotalPersons is the sum of each
// tenant's distinct non-self person names.
type GlobalStats struct {
	TotalTenants       int `json:"total_tenants"`
	TotalPersons       int `json:"total_persons"`
	TotalAudioFeatures int `json:"total_audio_features"`
}

// StorageInfo describes the backing storage.
type StorageInfo struct {
	Backend              string `json:"backend"`
	BackingPath          string `json:"backing_path,omitempty"`
	TenantCount          int    `json:"tenant_count"`
	CollectionsPerTenant int    `json:"collections_per_tenant"`
}

// Aggregator derives per-tenant and global statistics by scanning record
// metadata through the repository.
type Aggregator struct {
	router  *Router
	repo    *Repository
	logger  *zap.Logger
	metrics *Metrics

	backend     string
	backingPath string
}

// NewAggregator creates an Aggregator. backend and backingPath describe the
// index for StorageInfo.
func NewAggregator(router *Router, repo *Repository, backend, backingPath string, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		router:      router,
		repo:        repo,
		logger:      logger,
		metrics:     NewMetrics(),
		backend:     backend,
		backingPath: backingPath,
	}
}

// TenantStats scans one tenant's records once, splitting self records from
// per-person groups. A tenant with no records yields zero-valued stats.
func (a *Aggregator) TenantStats(ctx context.Context, tenantID string) (stats TenantStats, err error) {
	ctx, span := tracer.Start(ctx, "Aggregator.TenantStats")
	defer span.End()
	defer func() { a.metrics.RecordOperation("tenant_stats", err) }()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	records, err := a.repo.tenantRecords(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TenantStats{}, err
	}

	stats = TenantStats{UserID: tenantID, Persons: []PersonSummary{}}
	for _, rec := range records {
		stats.TotalAudioFeatures++
		if rec.IsSelf {
			stats.SelfAudioCount++
		}
	}
	stats.Persons = summarizePersons(records)
	stats.TotalPersons = len(stats.Persons)

	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// GlobalStats sums per-tenant counts across every known tenant. Each tenant
// contributes its true distinct non-self person count.
func (a *Aggregator) GlobalStats(ctx context.Context) (stats GlobalStats, err error) {
	ctx, span := tracer.Start(ctx, "Aggregator.GlobalStats")
	defer span.End()
	defer func() { a.metrics.RecordOperation("global_stats", err) }()

	tenants, err := a.router.Tenants(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GlobalStats{}, err
	}

	stats = GlobalStats{TotalTenants: len(tenants)}
	for _, tenantID := range tenants {
		tenantStats, terr := a.TenantStats(ctx, tenantID)
		if terr != nil {
			err = terr
			return GlobalStats{}, err
		}
		stats.TotalPersons += tenantStats.TotalPersons
		stats.TotalAudioFeatures += tenantStats.TotalAudioFeatures
	}

	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// StorageInfo returns descriptive info about the backing storage.
func (a *Aggregator) StorageInfo(ctx context.Context) (info StorageInfo, err error) {
	ctx, span := tracer.Start(ctx, "Aggregator.StorageInfo")
	defer span.End()
	defer func() { a.metrics.RecordOperation("storage_info", err) }()

	tenants, err := a.router.Tenants(ctx)
	if err != nil {
		span.RecordError(err)
		return StorageInfo{}, err
	}

	return StorageInfo{
		Backend:              a.backend,
		BackingPath:          a.backingPath,
		TenantCount:          len(tenants),
		CollectionsPerTenant: 1,
	}, nil
}

// ListTenants returns all tenant ids with a collection, sorted.
func (a *Aggregator) ListTenants(ctx context.Context) ([]string, error) {
	return a.router.Tenants(ctx)
}
