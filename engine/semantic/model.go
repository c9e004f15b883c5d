package semantic

import "context"

// Embedder is the embedding provider capability the store and retriever share.
// Query and document embeddings must come from the same model, otherwise the
// similarity scores within a collection are meaningless.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Neighbor is a single nearest-neighbour hit, in store order (increasing
// distance). Distance is cosine distance in [0, 2]; nil means the backend
// did not report one — ranking policy for that case belongs to retrieval.
type Neighbor struct {
	Key      string
	Content  string
	Distance *float32
	Metadata map[string]any
}
