// Command worker consumes ingestion requests from NATS and runs them through
// the ingestion pipeline, with bounded retries and a dead letter queue.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docchat-ai/docchat/engine/ingest"
	"github.com/docchat-ai/docchat/engine/semantic"
	"github.com/docchat-ai/docchat/pkg/ollama"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

func main() {
	var (
		natsURL    = flag.String("nats", nats.DefaultURL, "NATS server URL")
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		embedDims  = flag.Int("dims", 768, "embedding dimensionality")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(*natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Error("nats connect failed", "url", *natsURL, "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel).
		WithRateLimit(rate.Every(50*time.Millisecond), 10)

	store, err := semantic.New(*qdrantAddr, embedder, *embedDims, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sub, err := ingest.StartConsumer(nc, ingest.Deps{Store: store, Logger: log})
	if err != nil {
		log.Error("subscribe failed", "subject", ingest.IngestSubject, "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("worker started", "subject", ingest.IngestSubject, "dlq", ingest.DLQSubject)
	<-ctx.Done()
	log.Info("worker shutting down")
}
