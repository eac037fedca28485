package featurestore

import (
	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/featurecache"
	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

// Store bundles the router, repository, searcher, and aggregator over a
// single vector index. It is the unit the transport layer wires against.
type Store struct {
	Router *Router
	Repo   *Repository
	Search *Searcher
	Stats  *Aggregator
	Cache  *featurecache.Cache

	index vectorindex.Index
}

// NewStore assembles a Store over the index. The cache is optional; backend
// and backingPath describe the index for storage info.
func NewStore(index vectorindex.Index, cache *featurecache.Cache, backend, backingPath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := NewRouter(index, logger.Named("router"))
	repo := NewRepository(router, index, cache, logger.Named("repository"))

	return &Store{
		Router: router,
		Repo:   repo,
		Search: NewSearcher(router, index, logger.Named("search")),
		Stats:  NewAggregator(router, repo, backend, backingPath, logger.Named("stats")),
		Cache:  cache,
		index:  index,
	}
}

// Dimension returns the index's vector dimension.
func (s *Store) Dimension() int {
	return s.index.Dimension()
}

// Close closes the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}
