// Package vectorindex provides vector index implementations.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("voiced.vectorindex.chromem")

// errPrecomputedOnly is returned by the collection embedding function.
// voiced always inserts precomputed vectors, so chromem must never be asked
// to embed text on its own.
var errPrecomputedOnly = errors.New("vectorindex: embeddings are precomputed, text embedding is not supported")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/voiced/index"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Dimension is the expected embedding dimension.
	// Must match the extractor's output dimension.
	// Default: 192
	Dimension int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/voiced/index"
	}
	if c.Dimension == 0 {
		c.Dimension = 192
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemIndex implements Index using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It persists collections to gob files under a base directory
// and performs exact cosine similarity over normalized vectors.
//
// chromem exposes no record-listing call, so GetAll enumerates a collection
// by querying with a fixed probe vector and k equal to the record count;
// query results carry the stored vectors and metadata.
type ChromemIndex struct {
	db        *chromem.DB
	config    ChromemConfig
	logger    *zap.Logger
	basePath  string
	embedFunc chromem.EmbeddingFunc
}

// NewChromemIndex creates a ChromemIndex with the given configuration.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: creating chromem DB: %v", ErrConnectionFailed, err)
	}

	idx := &ChromemIndex{
		db:       db,
		config:   config,
		logger:   logger,
		basePath: expandedPath,
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errPrecomputedOnly
		},
	}

	logger.Info("chromem index initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("dimension", config.Dimension),
	)

	return idx, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// BasePath returns the directory backing the index.
func (x *ChromemIndex) BasePath() string {
	return x.basePath
}

// Dimension returns the fixed vector dimension.
func (x *ChromemIndex) Dimension() int {
	return x.config.Dimension
}

// EnsureCollection creates the collection if it does not exist.
func (x *ChromemIndex) EnsureCollection(ctx context.Context, name string, metadata map[string]string) error {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.EnsureCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	// Must pass the embedding function, not nil: chromem-go falls back to
	// its OpenAI embedder when nil is passed for persisted collections.
	if _, err := x.db.GetOrCreateCollection(name, metadata, x.embedFunc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// collection returns the open collection handle or ErrCollectionNotFound.
func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := x.db.GetCollection(name, x.embedFunc)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Insert adds records to a collection.
func (x *ChromemIndex) Insert(ctx context.Context, collection string, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("record_count", len(records)),
	)

	if len(records) == 0 {
		return nil
	}

	c, err := x.collection(collection)
	if err != nil {
		span.RecordError(err)
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		if len(rec.Vector) != x.config.Dimension {
			return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(rec.Vector), x.config.Dimension)
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Metadata:  rec.Metadata,
			Embedding: rec.Vector,
		}
	}

	// Concurrency of 1: embeddings are precomputed, nothing to parallelize.
	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding records to %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	x.logger.Debug("inserted records",
		zap.String("collection", collection),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query returns up to k nearest records by cosine distance.
func (x *ChromemIndex) Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
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

	c, err := x.collection(collection)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// chromem requires nResults <= record count.
	count := c.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Metadata: r.Metadata,
			// chromem reports cosine similarity in [-1, 1].
			Distance: 1 - r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// GetAll enumerates every record in a collection.
func (x *ChromemIndex) GetAll(ctx context.Context, collection string) ([]Record, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.GetAll")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	c, err := x.collection(collection)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	count := c.Count()
	if count == 0 {
		return []Record{}, nil
	}

	// Probe with a fixed unit vector; with k = count the query returns the
	// whole collection regardless of direction.
	probe := make([]float32, x.config.Dimension)
	probe[0] = 1

	results, err := c.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enumerating collection %s: %w", collection, err)
	}

	records := make([]Record, len(results))
	for i, r := range results {
		records[i] = Record{
			ID:       r.ID,
			Vector:   r.Embedding,
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// Delete removes records by id.
func (x *ChromemIndex) Delete(ctx context.Context, collection string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}

	c, err := x.collection(collection)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := c.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	x.logger.Debug("deleted records",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
	)
	return nil
}

// Count returns the number of records in a collection.
func (x *ChromemIndex) Count(ctx context.Context, collection string) (int, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.Count")
	defer span.End()

	c, err := x.collection(collection)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetStatus(codes.Ok, "success")
	return c.Count(), nil
}

// ListCollections returns all collection names, sorted.
func (x *ChromemIndex) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.ListCollections")
	defer span.End()

	collectionsMap := x.db.ListCollections()
	names := make([]string, 0, len(collectionsMap))
	for name := range collectionsMap {
		names = append(names, name)
	}
	sort.Strings(names)

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	span.SetStatus(codes.Ok, "success")
	return names, nil
}

// DropCollection deletes a collection and all its records.
func (x *ChromemIndex) DropCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.DropCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	if err := x.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "success")
	x.logger.Info("dropped collection", zap.String("collection", name))
	return nil
}

// Close closes the index.
// chromem-go persists on write, no explicit close is needed.
func (x *ChromemIndex) Close() error {
	x.logger.Info("chromem index closed")
	return nil
}

// Ensure ChromemIndex implements Index.
var _ Index = (*ChromemIndex)(nil)
