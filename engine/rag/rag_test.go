package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docchat-ai/docchat/engine/domain"
)

type stubRetriever struct {
	results []domain.RetrievalResult
	err     error
	calls   int
	topK    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _, _ string, topK int) ([]domain.RetrievalResult, error) {
	s.calls++
	s.topK = topK
	return s.results, s.err
}

type stubGenerator struct {
	answer   string
	err      error
	calls    int
	messages []domain.Message
}

func (s *stubGenerator) Generate(_ context.Context, messages []domain.Message) (string, error) {
	s.calls++
	s.messages = messages
	return s.answer, s.err
}

func result(source string, page int, content string, score float32) domain.RetrievalResult {
	return domain.RetrievalResult{Content: content, Source: source, Page: page, Score: score}
}

func TestChat(t *testing.T) {
	retriever := &stubRetriever{results: []domain.RetrievalResult{
		result("a.pdf", 2, "grounding text", 0.9),
		result("b.txt", 0, "more text", 0.7),
	}}
	llm := &stubGenerator{answer: "The answer, per a.pdf."}
	svc := New(retriever, llm, Options{}, nil)

	resp, err := svc.Chat(context.Background(), "what is this?", "docs", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "The answer, per a.pdf." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.ContextUsed) != 2 {
		t.Errorf("context used = %d results, want 2", len(resp.ContextUsed))
	}

	wantSources := []string{"a.pdf (page 2)", "b.txt"}
	if len(resp.Sources) != len(wantSources) {
		t.Fatalf("sources = %v, want %v", resp.Sources, wantSources)
	}
	for i := range wantSources {
		if resp.Sources[i] != wantSources[i] {
			t.Errorf("sources[%d] = %q, want %q", i, resp.Sources[i], wantSources[i])
		}
	}

	if llm.calls != 1 {
		t.Fatalf("generator called %d times, want 1", llm.calls)
	}
	if len(llm.messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(llm.messages))
	}
	system := llm.messages[0]
	if system.Role != domain.RoleSystem {
		t.Errorf("first message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "[Source 1: a.pdf (page 2)]\ngrounding text") {
		t.Error("system prompt missing first context block")
	}
	if !strings.Contains(system.Content, "No previous conversation.") {
		t.Error("empty history must render the placeholder")
	}
	user := llm.messages[1]
	if user.Role != domain.RoleUser || user.Content != "what is this?" {
		t.Errorf("user message = %+v", user)
	}
}

func TestChatEmptyCorpusSkipsLLM(t *testing.T) {
	retriever := &stubRetriever{}
	llm := &stubGenerator{answer: "should not be used"}
	svc := New(retriever, llm, Options{}, nil)

	resp, err := svc.Chat(context.Background(), "anything?", "docs", nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.calls != 0 {
		t.Error("empty retrieval must not invoke the LLM")
	}
	if resp.Answer != "I don't have any documents to search. Please upload some documents first." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("sources = %v, want empty slice", resp.Sources)
	}
	if resp.ContextUsed == nil || len(resp.ContextUsed) != 0 {
		t.Errorf("context used = %v, want empty slice", resp.ContextUsed)
	}
}

func TestChatEmptyQuery(t *testing.T) {
	retriever := &stubRetriever{}
	svc := New(retriever, &stubGenerator{}, Options{}, nil)

	_, err := svc.Chat(context.Background(), "   ", "docs", nil, 5)
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("got %v, want ErrEmptyQuery", err)
	}
	if retriever.calls != 0 {
		t.Error("invalid query must not reach retrieval")
	}
}

func TestChatTopKDefault(t *testing.T) {
	retriever := &stubRetriever{}
	svc := New(retriever, &stubGenerator{}, Options{TopK: 9}, nil)

	if _, err := svc.Chat(context.Background(), "q", "docs", nil, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retriever.topK != 9 {
		t.Errorf("retriever got topK %d, want 9", retriever.topK)
	}
}

func TestChatHistoryWindow(t *testing.T) {
	retriever := &stubRetriever{results: []domain.RetrievalResult{result("a.txt", 0, "ctx", 0.9)}}
	llm := &stubGenerator{answer: "ok"}
	svc := New(retriever, llm, Options{}, nil)

	var history []domain.Message
	for i := 1; i <= 10; i++ {
		role := domain.RoleUser
		if i%2 == 0 {
			role = domain.RoleAssistant
		}
		history = append(history, domain.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	if _, err := svc.Chat(context.Background(), "q", "docs", history, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	system := llm.messages[0].Content
	for i := 1; i <= 4; i++ {
		if strings.Contains(system, fmt.Sprintf("m%d", i)) {
			t.Errorf("message m%d outside the window leaked into the prompt", i)
		}
	}
	for i := 5; i <= 10; i++ {
		if !strings.Contains(system, fmt.Sprintf("m%d", i)) {
			t.Errorf("message m%d missing from the prompt", i)
		}
	}
	// Oldest first, with role labels.
	if !strings.Contains(system, "Human: m5\nAssistant: m6") {
		t.Error("history not rendered oldest first with role labels")
	}
}

func TestChatRetrieveError(t *testing.T) {
	llm := &stubGenerator{}
	svc := New(&stubRetriever{err: errors.New("store down")}, llm, Options{}, nil)

	_, err := svc.Chat(context.Background(), "q", "docs", nil, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if llm.calls != 0 {
		t.Error("retrieval failure must not invoke the LLM")
	}
}

func TestChatGenerateError(t *testing.T) {
	retriever := &stubRetriever{results: []domain.RetrievalResult{result("a.txt", 0, "ctx", 0.9)}}
	svc := New(retriever, &stubGenerator{err: errors.New("ollama down")}, Options{}, nil)

	if _, err := svc.Chat(context.Background(), "q", "docs", nil, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestFormatContext(t *testing.T) {
	results := []domain.RetrievalResult{
		result("a.pdf", 2, "first block", 0.9),
		result("b.txt", 0, "second block", 0.8),
	}
	got := FormatContext(results)
	want := "[Source 1: a.pdf (page 2)]\nfirst block\n\n---\n\n[Source 2: b.txt]\nsecond block"
	if got != want {
		t.Errorf("FormatContext =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatContextEmpty(t *testing.T) {
	if got := FormatContext(nil); got != "No relevant documents found." {
		t.Errorf("FormatContext(nil) = %q", got)
	}
}

func TestCitationsDeduplicate(t *testing.T) {
	results := []domain.RetrievalResult{
		result("a.pdf", 2, "one", 0.9),
		result("a.pdf", 2, "two", 0.8),
		result("a.pdf", 3, "three", 0.7),
		result("b.txt", 0, "four", 0.6),
	}
	got := citations(results)
	want := []string{"a.pdf (page 2)", "a.pdf (page 3)", "b.txt"}
	if len(got) != len(want) {
		t.Fatalf("citations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("citations[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
