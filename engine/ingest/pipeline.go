package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/engine/semantic"
	"github.com/docchat-ai/docchat/pkg/fn"
)

// Request is one ingestion job: a document on disk going into a named
// collection. Zero chunking values use the defaults.
type Request struct {
	Path         string `json:"path"`
	Collection   string `json:"collection"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
	Retries      int    `json:"retries,omitempty"`
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Store  *semantic.VectorStore
	Logger *slog.Logger
}

type chunkedRequest struct {
	Request
	Chunks []domain.DocumentChunk
}

// NewPipeline composes chunk -> store into a single traced stage. The result
// is the number of chunks written.
func NewPipeline(deps Deps) fn.Stage[Request, int] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	chunk := fn.TracedStage("ingest.chunk", func(_ context.Context, req Request) fn.Result[chunkedRequest] {
		chunks, err := IngestDocument(req.Path, Options{ChunkSize: req.ChunkSize, ChunkOverlap: req.ChunkOverlap})
		if err != nil {
			return fn.Err[chunkedRequest](fmt.Errorf("ingest %s: %w", req.Path, err))
		}
		return fn.Ok(chunkedRequest{Request: req, Chunks: chunks})
	})

	tap := fn.TapStage(func(_ context.Context, cr chunkedRequest) {
		log.Info("ingest: document chunked", "path", cr.Path, "chunks", len(cr.Chunks))
	})

	store := fn.TracedStage("ingest.store", func(ctx context.Context, cr chunkedRequest) fn.Result[int] {
		coll, err := deps.Store.GetOrCreateCollection(ctx, cr.Collection)
		if err != nil {
			return fn.Err[int](err)
		}
		if err := coll.AddDocuments(ctx, cr.Chunks); err != nil {
			return fn.Err[int](err)
		}
		return fn.Ok(len(cr.Chunks))
	})

	return fn.Then(fn.Then(chunk, tap), store)
}
