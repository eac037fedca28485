// Package embeddings provides voice feature extraction via an external
// extractor service.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil audio input
	ErrEmptyInput = errors.New("empty or nil audio input")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExtractionFailed indicates feature extraction failure
	ErrExtractionFailed = errors.New("feature extraction failed")

	// ErrDimensionMismatch indicates the extractor returned a vector of an
	// unexpected dimension
	ErrDimensionMismatch = errors.New("unexpected embedding dimension")
)

// Extractor converts raw audio into a fixed-dimension voice feature vector.
type Extractor interface {
	// Extract returns the feature vector for one audio clip.
	Extract(ctx context.Context, audio []byte) ([]float32, error)

	// Dimension returns the vector dimension the extractor produces.
	Dimension() int
}
