package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/telemetry"
)

// DefaultRetrievalK is the number of chunks retrieved per query.
const DefaultRetrievalK = 4

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher runs nearest-neighbour search over stored chunks.
type ChunkSearcher interface {
	NearestNeighbors(ctx context.Context, embedding []float32, k int, filter domain.SearchFilter) (domain.RetrievalResult, error)
}

// RetrieverConfig controls retrieval behavior.
type RetrieverConfig struct {
	K      int
	Filter domain.SearchFilter
}

// DefaultRetrieverConfig returns pure similarity retrieval of four chunks.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{K: DefaultRetrievalK}
}

// Retriever embeds a query and fetches its nearest ranking chunks.
type Retriever struct {
	embeddings EmbeddingClient
	store      ChunkSearcher
	cfg        RetrieverConfig
}

func NewRetriever(embeddings EmbeddingClient, store ChunkSearcher) *Retriever {
	return NewRetrieverWithConfig(embeddings, store, DefaultRetrieverConfig())
}

func NewRetrieverWithConfig(embeddings EmbeddingClient, store ChunkSearcher, cfg RetrieverConfig) *Retriever {
	if cfg.K <= 0 {
		cfg.K = DefaultRetrievalK
	}
	return &Retriever{embeddings: embeddings, store: store, cfg: cfg}
}

// EmbedQuery returns the query vector. Every failure carries EMBEDDING_SERVICE_ERROR.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	vec, err := r.embeddings.GenerateEmbedding(ctx, query)
	if err != nil {
		if domain.HasCode(err, domain.ErrCodeEmbeddingService) {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Search returns at most k chunks closest to vec. A non-positive k uses the configured default.
func (r *Retriever) Search(ctx context.Context, vec []float32, k int) (domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.cfg.K
	}

	results, err := r.store.NearestNeighbors(ctx, vec, k, r.cfg.Filter)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrIndexUnreachable, err)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Retrieve embeds the query exactly once and searches the index.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{Operation: "retrieve"})
	defer span.End()

	vec, err := r.EmbedQuery(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	results, err := r.Search(ctx, vec, k)
	span.SetError(err)
	return results, err
}
