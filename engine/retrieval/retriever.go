// Package retrieval executes semantic search over a named collection and
// normalizes the store's raw neighbors into ranked, scored results. The store
// returns neighbors ordered by increasing cosine distance; this package keeps
// that order and only converts distance into a similarity score.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/engine/semantic"
)

// DefaultTopK is the number of candidates requested when the caller passes
// topK <= 0 and no other default is configured.
const DefaultTopK = 5

// Searcher abstracts the vector store's nearest-neighbour query surface.
type Searcher interface {
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]semantic.Neighbor, error)
}

// Retriever embeds a query with the same Embedder used at ingest time and
// searches the named collection.
type Retriever struct {
	embed  semantic.Embedder
	search Searcher
	topK   int
	logger *slog.Logger
}

// New creates a Retriever. defaultTopK <= 0 falls back to DefaultTopK.
func New(embed semantic.Embedder, search Searcher, defaultTopK int, logger *slog.Logger) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embed: embed, search: search, topK: defaultTopK, logger: logger}
}

// Retrieve returns up to topK results ordered by descending score. An empty
// collection or a query that matches nothing yields an empty slice, never an
// error.
func (r *Retriever) Retrieve(ctx context.Context, query, collection string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vector, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	neighbors, err := r.search.Query(ctx, collection, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search %s: %w", collection, err)
	}

	results := make([]domain.RetrievalResult, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, fromNeighbor(n))
	}
	r.logger.Debug("retrieval: query done", "collection", collection, "top_k", topK, "results", len(results))
	return results, nil
}

// fromNeighbor converts one store hit into a RetrievalResult. A missing
// distance defaults to 0, i.e. maximal similarity: absent distance data must
// not suppress a result.
func fromNeighbor(n semantic.Neighbor) domain.RetrievalResult {
	var distance float32
	if n.Distance != nil {
		distance = *n.Distance
	}

	source := "Unknown"
	if s, ok := n.Metadata[domain.MetaSource].(string); ok && s != "" {
		source = s
	}
	page := 0
	if p, ok := n.Metadata[domain.MetaPage].(int); ok {
		page = p
	}

	return domain.RetrievalResult{
		Content:  n.Content,
		Source:   source,
		Page:     page,
		Score:    1 - distance,
		Metadata: n.Metadata,
	}
}
