// Command chat is an interactive terminal client: it keeps the conversation
// history in process and answers each question through the RAG pipeline.
// Failed generations are retried here, at the caller, never in the engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/engine/rag"
	"github.com/docchat-ai/docchat/engine/retrieval"
	"github.com/docchat-ai/docchat/engine/semantic"
	"github.com/docchat-ai/docchat/pkg/fn"
	"github.com/docchat-ai/docchat/pkg/ollama"
)

func main() {
	var (
		collection = flag.String("collection", "documents", "collection to chat with")
		topK       = flag.Int("top-k", retrieval.DefaultTopK, "retrieved chunks per question")
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("embed-model", "nomic-embed-text", "Ollama embedding model")
		chatModel  = flag.String("chat-model", "llama3.2", "Ollama chat model")
		embedDims  = flag.Int("dims", 768, "embedding dimensionality")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		retries    = flag.Int("retries", 2, "attempts per question before giving up")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	embedder := ollama.NewEmbedClient(*ollamaURL, *embedModel)
	llm := ollama.NewChatClient(*ollamaURL, *chatModel, ollama.DefaultTemperature)

	store, err := semantic.New(*qdrantAddr, embedder, *embedDims, log)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	retriever := retrieval.New(embedder, store, *topK, log)
	svc := rag.New(retriever, llm, rag.Options{TopK: *topK}, log)

	retryOpts := fn.RetryOpts{
		MaxAttempts: *retries,
		InitialWait: time.Second,
		MaxWait:     10 * time.Second,
		Jitter:      true,
	}

	fmt.Printf("Chatting with collection %q. Empty line or Ctrl-C to quit.\n", *collection)

	var history []domain.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		result := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[*domain.ChatResponse] {
			return fn.FromPair(svc.Chat(ctx, question, *collection, history, *topK))
		})
		resp, err := result.Unwrap()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\nIs Ollama running? Try `ollama serve`.\n", err)
			continue
		}

		fmt.Println(resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, s := range resp.Sources {
				fmt.Printf("  - %s\n", s)
			}
		}
		fmt.Println()

		history = append(history,
			domain.Message{Role: domain.RoleUser, Content: question},
			domain.Message{Role: domain.RoleAssistant, Content: resp.Answer},
		)
	}
}
