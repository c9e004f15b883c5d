// Package rag orchestrates the retrieval-augmented chat pipeline. Per call it
// retrieves grounding context for the question, assembles the prompt with the
// recent conversation window, invokes the LLM, and derives citations from the
// retrieved results. It keeps no state across calls beyond what the caller
// supplies as history.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docchat-ai/docchat/engine/domain"
)

// Retriever abstracts engine/retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, query, collection string, topK int) ([]domain.RetrievalResult, error)
}

// Generator abstracts the LLM provider: one synchronous completion, no
// streaming required here.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message) (string, error)
}

// historyWindow is the number of history messages kept in the prompt:
// the last 3 exchanges, newest last.
const historyWindow = 6

const systemPrompt = `You are a helpful assistant that answers questions based on the provided context.

IMPORTANT RULES:
1. Only answer based on the context provided below
2. If the context doesn't contain the answer, say "I don't have enough information to answer that based on the documents."
3. Always cite your sources by mentioning which document the information came from
4. Be concise but thorough
5. If asked about something not in the documents, acknowledge that

CONTEXT:
%s

CHAT HISTORY:
%s
`

// noDocumentsAnswer is returned without invoking the LLM when retrieval
// comes back empty. An empty corpus is a defined outcome, not an error.
const noDocumentsAnswer = "I don't have any documents to search. Please upload some documents first."

// Options configures the orchestrator.
type Options struct {
	TopK int
}

// DefaultOptions returns the defaults used when no configuration is supplied.
func DefaultOptions() Options {
	return Options{TopK: 5}
}

// Service is the chat orchestration service.
type Service struct {
	retriever Retriever
	llm       Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a chat Service.
func New(retriever Retriever, llm Generator, opts Options, logger *slog.Logger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{retriever: retriever, llm: llm, opts: opts, logger: logger}
}

// Chat answers one question grounded in the named collection. history is the
// caller-owned conversation so far; topK <= 0 uses the configured default.
func (s *Service) Chat(ctx context.Context, query, collection string, history []domain.Message, topK int) (*domain.ChatResponse, error) {
	if err := domain.ValidateQuery(query); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.opts.TopK
	}

	results, err := s.retriever.Retrieve(ctx, query, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", err)
	}
	s.logger.Info("rag: retrieved context", "collection", collection, "results", len(results))

	if len(results) == 0 {
		return &domain.ChatResponse{
			Answer:      noDocumentsAnswer,
			Sources:     []string{},
			ContextUsed: []domain.RetrievalResult{},
		}, nil
	}

	system := fmt.Sprintf(systemPrompt, FormatContext(results), formatHistory(history))
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: query},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	return &domain.ChatResponse{
		Answer:      answer,
		Sources:     citations(results),
		ContextUsed: results,
	}, nil
}

// FormatContext renders retrieval results as labeled grounding blocks in
// retrieval order, separated by a delimiter line. Standalone contract: an
// empty input yields a fixed placeholder rather than an empty string.
func FormatContext(results []domain.RetrievalResult) string {
	if len(results) == 0 {
		return "No relevant documents found."
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, r.Citation(), r.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// formatHistory renders the last historyWindow messages, oldest first.
func formatHistory(history []domain.Message) string {
	if len(history) == 0 {
		return "No previous conversation."
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	lines := make([]string, len(history))
	for i, m := range history {
		role := "Assistant"
		if m.Role == domain.RoleUser {
			role = "Human"
		}
		lines[i] = role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// citations derives the deduplicated citation list from the results, in
// first-seen order. Only (source, page) identity matters, not rank.
func citations(results []domain.RetrievalResult) []string {
	seen := make(map[string]bool, len(results))
	out := make([]string, 0, len(results))
	for _, r := range results {
		c := r.Citation()
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
