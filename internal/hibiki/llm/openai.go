package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"
	defaultTimeout = 30 * time.Second
)

// Config configures the OpenAI-compatible completion client.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-3.5-turbo when empty.
	Model string

	// MaxTokens caps the completion length. Zero lets the provider decide.
	MaxTokens int

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// openAIClient implements Completer against the OpenAI chat completions API.
type openAIClient struct {
	cfg    Config
	client *http.Client
}

// New returns a Completer backed by the OpenAI (or compatible) chat API.
// The returned client is safe for concurrent use.
func New(cfg Config) Completer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiResponse struct {
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   *oaiUsage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Complete sends the conversation to the chat completions endpoint and
// returns the assistant's reply.
func (c *openAIClient) Complete(ctx context.Context, history []Message, userMessage string) (*Completion, error) {
	messages := make([]oaiMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, oaiMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, oaiMessage{Role: RoleUser, Content: userMessage})

	body := oaiRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: c.cfg.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProvider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create http request: %v", ErrProvider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", ErrProvider, err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode == http.StatusTooManyRequests {
		// Matches both sentinels: callers may treat a 429 as a generic
		// provider failure or single it out.
		return nil, fmt.Errorf("%w: %w (HTTP 429)", ErrProvider, ErrRateLimit)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrProvider, err)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("%w: decode API response: %v", ErrProvider, err)
	}

	if oaiResp.Error != nil {
		return nil, fmt.Errorf("%w: API error (%s): %s", ErrProvider, oaiResp.Error.Type, oaiResp.Error.Message)
	}

	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned (HTTP %d)", ErrProvider, resp.StatusCode)
	}

	result := &Completion{
		Text: oaiResp.Choices[0].Message.Content,
		Usage: TokenUsage{
			Model:     oaiResp.Model,
			LatencyMS: latency.Milliseconds(),
		},
	}
	if oaiResp.Usage != nil {
		result.Usage.PromptTokens = oaiResp.Usage.PromptTokens
		result.Usage.CompletionTokens = oaiResp.Usage.CompletionTokens
		result.Usage.TotalTokens = oaiResp.Usage.TotalTokens
	}

	return result, nil
}
