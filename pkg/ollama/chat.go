package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docchat-ai/docchat/engine/domain"
	"github.com/docchat-ai/docchat/pkg/resilience"
)

// DefaultTemperature leans the model towards factual answers.
const DefaultTemperature = 0.3

// ChatClient generates completions via Ollama's /api/chat endpoint,
// non-streaming.
type ChatClient struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
	breaker     *resilience.Breaker
}

// NewChatClient creates a chat client. temperature <= 0 uses DefaultTemperature.
func NewChatClient(baseURL, model string, temperature float32) *ChatClient {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &ChatClient{
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		client:      &http.Client{},
	}
}

// WithBreaker routes generation calls through a circuit breaker.
func (c *ChatClient) WithBreaker(b *resilience.Breaker) *ChatClient {
	c.breaker = b
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Generate runs one synchronous completion over the given messages.
func (c *ChatClient) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	var answer string
	call := func(ctx context.Context) error {
		var err error
		answer, err = c.doGenerate(ctx, messages)
		return err
	}
	if c.breaker != nil {
		if err := c.breaker.Call(ctx, call); err != nil {
			return "", err
		}
		return answer, nil
	}
	if err := call(ctx); err != nil {
		return "", err
	}
	return answer, nil
}

func (c *ChatClient) doGenerate(ctx context.Context, messages []domain.Message) (string, error) {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	body, _ := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: chat: status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama: chat decode: %w", err)
	}
	return result.Message.Content, nil
}
