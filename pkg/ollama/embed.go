// Package ollama provides embedding and chat adapters over the Ollama HTTP
// API. The embed client implements semantic.Embedder; the chat client
// implements rag.Generator. Calls are rate limited client-side and can be
// wrapped in a circuit breaker.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docchat-ai/docchat/pkg/resilience"
	"golang.org/x/time/rate"
)

// EmbedClient computes embeddings via Ollama's /api/embeddings endpoint.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewEmbedClient creates an embedding client for the given model. The default
// rate limit is unlimited; use WithRateLimit for shared Ollama instances.
func NewEmbedClient(baseURL, model string) *EmbedClient {
	return &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// WithRateLimit caps outgoing embedding calls.
func (c *EmbedClient) WithRateLimit(limit rate.Limit, burst int) *EmbedClient {
	c.limiter = rate.NewLimiter(limit, burst)
	return c
}

// WithBreaker routes calls through a circuit breaker.
func (c *EmbedClient) WithBreaker(b *resilience.Breaker) *EmbedClient {
	c.breaker = b
	return c
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedQuery embeds a single query text.
func (c *EmbedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text)
}

// EmbedDocuments embeds a batch of document texts, one vector per text.
// Any failure fails the whole batch; there is no partial-success contract.
func (c *EmbedClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama: embed document [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *EmbedClient) embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var vec []float32
	call := func(ctx context.Context) error {
		var err error
		vec, err = c.doEmbed(ctx, text)
		return err
	}
	if c.breaker != nil {
		if err := c.breaker.Call(ctx, call); err != nil {
			return nil, err
		}
		return vec, nil
	}
	if err := call(ctx); err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *EmbedClient) doEmbed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: embed: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
