// Package main implements the document chat API server: ingestion, chat, and
// collection management over HTTP, with /metrics and /api/health.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/engine/ingest"
	"github.com/docchat-ai/docchat/engine/rag"
	"github.com/docchat-ai/docchat/engine/retrieval"
	"github.com/docchat-ai/docchat/engine/semantic"
	"github.com/docchat-ai/docchat/pkg/metrics"
	"github.com/docchat-ai/docchat/pkg/mid"
	"github.com/docchat-ai/docchat/pkg/ollama"
	"github.com/docchat-ai/docchat/pkg/resilience"
	"golang.org/x/time/rate"
)

// Config holds all environment-based configuration, resolved once at startup.
type Config struct {
	Port       string
	OllamaURL  string
	EmbedModel string
	ChatModel  string
	EmbedDims  int
	QdrantAddr string
	TopK       int
	CORSOrigin string
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:  envOr("CHAT_MODEL", "llama3.2"),
		EmbedDims:  envIntOr("EMBED_DIMS", 768),
		QdrantAddr: envOr("QDRANT_URL", "localhost:6334"),
		TopK:       envIntOr("TOP_K", retrieval.DefaultTopK),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var met = metrics.New()

var (
	mIngestDocs   = met.Counter("docchat_ingest_documents_total", "Documents ingested")
	mIngestChunks = met.Counter("docchat_ingest_chunks_total", "Chunks written to the vector store")
	mIngestErrors = met.Counter("docchat_ingest_errors_total", "Failed ingestion requests")
	mChatTotal    = met.Counter("docchat_chat_requests_total", "Chat requests served")
	mChatErrors   = met.Counter("docchat_chat_errors_total", "Failed chat requests")
	mChatDur      = met.Histogram("docchat_chat_duration_seconds", "End-to-end chat latency", nil)
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel).
		WithRateLimit(rate.Every(50*time.Millisecond), 10).
		WithBreaker(breaker)
	llm := ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, ollama.DefaultTemperature).
		WithBreaker(breaker)

	store, err := semantic.New(cfg.QdrantAddr, embedder, cfg.EmbedDims, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	retriever := retrieval.New(embedder, store, cfg.TopK, logger)
	chatSvc := rag.New(retriever, llm, rag.Options{TopK: cfg.TopK}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/ingest", handleIngest(store, logger))
	mux.HandleFunc("POST /api/chat", handleChat(chatSvc, logger))
	mux.HandleFunc("DELETE /api/collections/{name}", handleDeleteCollection(store, logger))
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docchat-server"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Path         string `json:"path"`
	Collection   string `json:"collection"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap int    `json:"chunk_overlap,omitempty"`
}

type ingestResponse struct {
	Chunks []domain.DocumentChunk `json:"chunks"`
}

func handleIngest(store *semantic.VectorStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" || req.Collection == "" {
			writeError(w, http.StatusBadRequest, "path and collection required")
			return
		}

		chunks, err := ingest.IngestDocument(req.Path, ingest.Options{
			ChunkSize:    req.ChunkSize,
			ChunkOverlap: req.ChunkOverlap,
		})
		if err != nil {
			mIngestErrors.Inc()
			status := http.StatusInternalServerError
			if errors.Is(err, domain.ErrUnsupportedFormat) || errors.Is(err, domain.ErrInvalidChunking) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}

		coll, err := store.GetOrCreateCollection(r.Context(), req.Collection)
		if err != nil {
			mIngestErrors.Inc()
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := coll.AddDocuments(r.Context(), chunks); err != nil {
			mIngestErrors.Inc()
			logger.Error("ingest: add documents failed", "path", req.Path, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		mIngestDocs.Inc()
		mIngestChunks.Add(int64(len(chunks)))
		writeJSON(w, http.StatusOK, ingestResponse{Chunks: chunks})
	}
}

type chatRequest struct {
	Question   string           `json:"question"`
	Collection string           `json:"collection"`
	History    []domain.Message `json:"history,omitempty"`
	TopK       int              `json:"top_k,omitempty"`
}

func handleChat(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" || req.Collection == "" {
			writeError(w, http.StatusBadRequest, "question and collection required")
			return
		}

		start := time.Now()
		resp, err := svc.Chat(r.Context(), req.Question, req.Collection, req.History, req.TopK)
		mChatDur.Since(start)
		if err != nil {
			mChatErrors.Inc()
			logger.Error("chat failed", "collection", req.Collection, "error", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		mChatTotal.Inc()
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDeleteCollection(store *semantic.VectorStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		deleted, err := store.DeleteCollection(r.Context(), name)
		if err != nil {
			logger.Error("delete collection failed", "collection", name, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"collection": name, "deleted": deleted})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
