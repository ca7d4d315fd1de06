// Package ai is a client for OpenAI-compatible chat-completion endpoints.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julianstephens/planmate/internal/constants"
	"github.com/julianstephens/planmate/internal/models"
)

const (
	roleSystem = "system"
	roleUser   = "user"
	maxBody    = 4 << 20
)

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Client talks to one endpoint with one key.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: constants.AIRequestTimeout},
	}
}

// WithTimeout replaces the HTTP client timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// ForSettings builds a client from AI settings. Missing configuration is
// reported before any request is made.
func ForSettings(s models.AISettings) (*Client, *GenerationError) {
	switch {
	case strings.TrimSpace(s.APIKey) == "":
		return nil, configError("API key is not configured")
	case strings.TrimSpace(s.BaseURL) == "":
		return nil, configError("API base URL is not configured")
	case strings.TrimSpace(s.ModelName) == "":
		return nil, configError("model name is not configured")
	}
	c := NewClientWithBaseURL(s.APIKey, s.BaseURL)
	if s.RequestTimeout > 0 {
		c.WithTimeout(time.Duration(s.RequestTimeout) * time.Second)
	}
	return c, nil
}

// NewRequest builds a non-streaming request from a system prompt and one user turn.
func NewRequest(s models.AISettings, systemPrompt, userTurn string) ChatRequest {
	return ChatRequest{
		Model:       s.ModelName,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Stream:      false,
		Messages: []ChatMessage{
			{Role: roleSystem, Content: systemPrompt},
			{Role: roleUser, Content: userTurn},
		},
	}
}

// NewConversationRequest builds a request from a system prompt followed by
// one user turn per message, oldest first.
func NewConversationRequest(s models.AISettings, systemPrompt string, userTurns []string) ChatRequest {
	msgs := make([]ChatMessage, 0, len(userTurns)+1)
	msgs = append(msgs, ChatMessage{Role: roleSystem, Content: systemPrompt})
	for _, t := range userTurns {
		msgs = append(msgs, ChatMessage{Role: roleUser, Content: t})
	}
	return ChatRequest{
		Model:       s.ModelName,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		Stream:      false,
		Messages:    msgs,
	}
}

// Complete sends req and returns the first choice's content. Every failure is
// a *GenerationError.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return "", &GenerationError{Category: CategoryParse, Message: "could not encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", configError(fmt.Sprintf("invalid API base URL: %v", err))
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpError(resp.StatusCode, string(respBody))
	}

	var out ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &GenerationError{Category: CategoryParse, Message: "could not parse the AI response", Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &GenerationError{Category: CategoryEmpty, Message: "the AI response had no choices"}
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", &GenerationError{Category: CategoryEmpty, Message: "the AI response was empty"}
	}
	return content, nil
}

// ListModels returns the models the endpoint offers.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp.StatusCode, "")
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &GenerationError{Category: CategoryParse, Message: "could not parse the model list", Err: err}
	}
	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", constants.AppName+"/"+constants.Version)
}
