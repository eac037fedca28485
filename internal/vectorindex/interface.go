// Package vectorindex defines the vector index collaborator for voiced.
//
// The index stores raw embedding vectors plus string-typed metadata in named
// collections and answers nearest-neighbor queries by cosine distance. It
// knows nothing about tenants, persons, or relationships; the feature store
// layers those semantics on top.
//
// Implementations:
//   - ChromemIndex: embedded chromem-go (default)
//   - QdrantIndex: external Qdrant over gRPC
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for index operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the backing engine is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector index")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, dashes, 1-128 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,128}$`)

// ValidateCollectionName validates a collection name.
// Rejects: empty names, uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must match pattern %s, got %q", ErrInvalidCollectionName, collectionNamePattern.String(), name)
	}
	return nil
}

// Record is one stored vector with its metadata.
type Record struct {
	// ID is the caller-chosen unique identifier within the collection.
	ID string

	// Vector is the embedding. Its length must equal the index dimension.
	Vector []float32

	// Metadata is the string-typed payload persisted next to the vector.
	Metadata map[string]string
}

// Match is one nearest-neighbor query result.
type Match struct {
	// ID is the matched record's identifier.
	ID string

	// Metadata is the record's persisted payload.
	Metadata map[string]string

	// Distance is the cosine distance to the query vector, in [0, 2],
	// where 0 means identical direction.
	Distance float32
}

// Index is the contract every vector index backend implements.
//
// All methods are safe for concurrent use. Methods taking a collection name
// return ErrCollectionNotFound when the collection does not exist, except
// EnsureCollection, which creates it.
type Index interface {
	// EnsureCollection creates the collection if it does not exist, configured
	// for cosine similarity and tagged with the given metadata. It is
	// idempotent: an existing collection is left untouched.
	EnsureCollection(ctx context.Context, name string, metadata map[string]string) error

	// Insert adds records to a collection. Records with duplicate IDs
	// overwrite the stored record.
	Insert(ctx context.Context, collection string, records []Record) error

	// Query returns up to k records nearest to the query vector, ordered by
	// ascending cosine distance.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Match, error)

	// GetAll enumerates every record in a collection, including vectors.
	GetAll(ctx context.Context, collection string) ([]Record, error)

	// Delete removes records by id. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of records in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// DropCollection deletes a collection and all its records.
	DropCollection(ctx context.Context, name string) error

	// Dimension returns the fixed vector dimension of this index.
	Dimension() int

	// Close releases the backend connection and resources.
	Close() error
}
