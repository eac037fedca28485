// Package featurestore implements the multi-tenant voice feature store.
//
// Each tenant owns exactly one collection in the vector index, named
// deterministically from the tenant id. Feature records hold one voice
// embedding each plus the metadata identifying the speaker. Recognition
// queries run against one tenant's collection, or fan out across every known
// tenant, never pooling vectors into a shared index.
package featurestore

import "errors"

var (
	// ErrInvalidInput indicates a malformed argument such as an empty
	// person name or tenant id
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidVector indicates an embedding whose dimension does not
	// match the index's expected size
	ErrInvalidVector = errors.New("invalid embedding vector")

	// ErrStorageUnavailable indicates the vector index cannot be reached
	// or a collection cannot be created or opened
	ErrStorageUnavailable = errors.New("storage unavailable")
)
