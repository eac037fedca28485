package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("voiced.vectorindex.qdrant")

// recordIDKey is the payload field carrying the caller-chosen record id.
// Qdrant point ids must be UUIDs or integers, so the record id is kept in
// the payload and used for filtering on delete.
const recordIDKey = "record_id"

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port).
	// Default: 6334
	Port int

	// Dimension is the expected embedding dimension.
	// Default: 192
	Dimension int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 16MB
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Dimension == 0 {
		c.Dimension = 192
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// QdrantIndex implements Index using Qdrant's native gRPC client.
//
// Collections are created with cosine distance; Qdrant reports cosine
// similarity scores, which are converted to cosine distance at this boundary
// so all backends speak the same unit.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantIndex creates a QdrantIndex and verifies the connection.
func NewQdrantIndex(config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant index initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("dimension", config.Dimension),
	)

	return idx, nil
}

// Dimension returns the fixed vector dimension.
func (x *QdrantIndex) Dimension() int {
	return x.config.Dimension
}

// isNotFound reports whether a gRPC error means the collection is missing.
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// EnsureCollection creates the collection if it does not exist.
// Collection-level metadata is not supported by Qdrant and is ignored.
func (x *QdrantIndex) EnsureCollection(ctx context.Context, name string, metadata map[string]string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.EnsureCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(x.config.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "created")
	x.logger.Info("created qdrant collection", zap.String("collection", name))
	return nil
}

// Insert upserts records into a collection.
func (x *QdrantIndex) Insert(ctx context.Context, collection string, records []Record) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("record_count", len(records)),
	)

	if len(records) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		if len(rec.Vector) != x.config.Dimension {
			return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(rec.Vector), x.config.Dimension)
		}

		payload := make(map[string]*qdrant.Value, len(rec.Metadata)+1)
		payload[recordIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: rec.ID}}
		for k, v := range rec.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}

		// Record ids are UUIDs; fall back to a fresh UUID for foreign ids,
		// the record id in the payload stays authoritative either way.
		pointID := rec.ID
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.New().String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: payload,
		}
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to k nearest records by cosine distance.
func (x *QdrantIndex) Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != x.config.Dimension {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), x.config.Dimension)
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	results, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	matches := make([]Match, len(results))
	for i, point := range results {
		id, meta := decodePayload(point.Payload)
		matches[i] = Match{
			ID:       id,
			Metadata: meta,
			// Qdrant reports cosine similarity for cosine collections.
			Distance: 1 - point.Score,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// GetAll enumerates every record in a collection via scroll.
func (x *QdrantIndex) GetAll(ctx context.Context, collection string) ([]Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.GetAll")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	const batchSize = 256
	var (
		records []Record
		offset  *qdrant.PointId
	)
	for {
		points, nextOffset, err := x.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scrolling collection %s: %w", collection, err)
		}
		if len(points) == 0 {
			break
		}

		for _, point := range points {
			id, meta := decodePayload(point.Payload)
			var vec []float32
			if v := point.Vectors.GetVector(); v != nil {
				vec = v.GetData()
			}
			records = append(records, Record{ID: id, Vector: vec, Metadata: meta})
		}

		if nextOffset == nil || len(points) < batchSize {
			break
		}
		offset = nextOffset
	}
	if records == nil {
		records = []Record{}
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// Delete removes records whose payload record id matches.
func (x *QdrantIndex) Delete(ctx context.Context, collection string, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						{
							ConditionOneOf: &qdrant.Condition_Field{
								Field: &qdrant.FieldCondition{
									Key: recordIDKey,
									Match: &qdrant.Match{
										MatchValue: &qdrant.Match_Keywords{
											Keywords: &qdrant.RepeatedStrings{Strings: ids},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of records in a collection.
func (x *QdrantIndex) Count(ctx context.Context, collection string) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Count")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	count, err := x.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return int(count), nil
}

// ListCollections returns all collection names.
func (x *QdrantIndex) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.ListCollections")
	defer span.End()

	names, err := x.client.ListCollections(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	span.SetStatus(codes.Ok, "success")
	return names, nil
}

// DropCollection deletes a collection and all its records.
func (x *QdrantIndex) DropCollection(ctx context.Context, name string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.DropCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	if err := x.client.DeleteCollection(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	x.logger.Info("dropped qdrant collection", zap.String("collection", name))
	return nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}

// decodePayload extracts the record id and string metadata from a point
// payload. Non-string payload values are skipped; voiced only writes strings.
func decodePayload(payload map[string]*qdrant.Value) (string, map[string]string) {
	if payload == nil {
		return "", nil
	}
	var id string
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		sv, ok := v.Kind.(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		if k == recordIDKey {
			id = sv.StringValue
			continue
		}
		meta[k] = sv.StringValue
	}
	return id, meta
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
