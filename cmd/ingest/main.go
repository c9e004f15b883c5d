// Command ingest loads a document or a directory of documents, chunks them,
// and writes the embedded chunks into a Qdrant collection.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/engine/ingest"
	"github.com/docchat-ai/docchat/engine/semantic"
	"github.com/docchat-ai/docchat/pkg/ollama"
	"golang.org/x/time/rate"
)

func main() {
	var (
		file         = flag.String("file", "", "document to ingest")
		dir          = flag.String("dir", "", "directory to ingest recursively")
		collection   = flag.String("collection", "documents", "target collection name")
		chunkSize    = flag.Int("chunk-size", ingest.DefaultChunkSize, "chunk size in characters")
		chunkOverlap = flag.Int("chunk-overlap", ingest.DefaultChunkOverlap, "overlap between adjacent chunks")
		ollamaURL    = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel   = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		embedDims    = flag.Int("dims", 768, "embedding dimensionality")
		qdrantAddr   = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if (*file == "") == (*dir == "") {
		log.Error("exactly one of -file or -dir is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel).
		WithRateLimit(rate.Every(50*time.Millisecond), 10)

	store, err := semantic.New(*qdrantAddr, embedder, *embedDims, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	opts := ingest.Options{ChunkSize: *chunkSize, ChunkOverlap: *chunkOverlap}

	var chunks []domain.DocumentChunk
	if *file != "" {
		chunks, err = ingest.IngestDocument(*file, opts)
	} else {
		chunks, err = ingest.IngestDirectory(*dir, opts, log)
	}
	if err != nil {
		log.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	if len(chunks) == 0 {
		log.Warn("nothing to ingest")
		return
	}

	coll, err := store.GetOrCreateCollection(ctx, *collection)
	if err != nil {
		log.Error("collection failed", "collection", *collection, "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := coll.AddDocuments(ctx, chunks); err != nil {
		log.Error("add documents failed", "error", err)
		os.Exit(1)
	}
	log.Info("ingest done",
		"collection", *collection,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
}
