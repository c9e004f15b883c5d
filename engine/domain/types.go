// Package domain defines the core types, errors, and validation for the
// document chat pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "fmt"

// Metadata keys every chunk carries. Loaders may add extras alongside these.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaPage       = "page"
)

// DocumentChunk is a contiguous span of source text with provenance metadata.
// Chunks are immutable after creation; re-ingesting a document supersedes the
// stored chunk under the same (source, chunk_index) key.
type DocumentChunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Source returns the originating document identifier, or "Unknown".
func (c DocumentChunk) Source() string {
	return metaString(c.Metadata, MetaSource, "Unknown")
}

// ChunkIndex returns the chunk's 0-based position within its source document.
func (c DocumentChunk) ChunkIndex() int {
	return metaInt(c.Metadata, MetaChunkIndex)
}

// Page returns the page number the chunk came from, 0 when not applicable.
func (c DocumentChunk) Page() int {
	return metaInt(c.Metadata, MetaPage)
}

// Key derives the storage key used by the vector store. (source, chunk_index)
// is unique within a collection, so the key addresses exactly one record.
func (c DocumentChunk) Key() string {
	return fmt.Sprintf("%s_%d", c.Source(), c.ChunkIndex())
}

// RetrievalResult is a single ranked hit from semantic retrieval.
// Constructed fresh per query; never persisted.
type RetrievalResult struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Page     int            `json:"page"`
	Score    float32        `json:"score"` // 1 - cosine distance, higher is closer
	Metadata map[string]any `json:"metadata"`
}

// Citation renders the human-readable source reference for the result.
func (r RetrievalResult) Citation() string {
	if r.Page != 0 {
		return fmt.Sprintf("%s (page %d)", r.Source, r.Page)
	}
	return r.Source
}

// Message roles used in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn of conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the orchestrator's answer to one question.
type ChatResponse struct {
	Answer      string            `json:"answer"`
	Sources     []string          `json:"sources"`
	ContextUsed []RetrievalResult `json:"context_used"`
}

func metaString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
