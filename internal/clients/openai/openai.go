// Package openai is a minimal client for the OpenAI Responses API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Config holds client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// HTTPClient defaults to a client with a 60s timeout; generation calls
	// are slow.
	HTTPClient *http.Client
}

// Client calls the OpenAI API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a client. The API key may be empty; calls then fail with a
// descriptive error so handlers can surface a configuration problem.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Message is a role-tagged prompt part for conversation-style input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseRequest struct {
	Model           string  `json:"model"`
	Input           any     `json:"input"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// Generate sends the prompt through the Responses API and returns the
// model's text output.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.GenerateWithLimit(ctx, prompt, 0)
}

// GenerateWithLimit is Generate with a cap on output tokens; zero means no
// cap.
func (c *Client) GenerateWithLimit(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	return c.generate(ctx, responseRequest{
		Model:           c.model,
		Input:           prompt,
		MaxOutputTokens: maxOutputTokens,
	})
}

// GenerateConversation sends a system+user message pair at the model's
// default sampling temperature.
func (c *Client) GenerateConversation(ctx context.Context, system, user string) (string, error) {
	return c.GenerateConversationSampled(ctx, system, user, 0)
}

// GenerateConversationSampled is GenerateConversation with an explicit
// sampling temperature; zero means the model default.
func (c *Client) GenerateConversationSampled(ctx context.Context, system, user string, temperature float64) (string, error) {
	return c.generate(ctx, responseRequest{
		Model:       c.model,
		Temperature: temperature,
		Input: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
}

func (c *Client) generate(ctx context.Context, reqBody responseRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai: api key not configured")
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("openai: %s (status %d)", msg, resp.StatusCode)
	}

	return ExtractText(raw), nil
}

// ExtractText pulls the generated text out of a Responses API payload. It
// prefers the aggregate output_text field and falls back to walking the
// output blocks for text content.
func ExtractText(raw []byte) string {
	if text := gjson.GetBytes(raw, "output_text").String(); text != "" {
		return text
	}

	var parts []string
	gjson.GetBytes(raw, "output").ForEach(func(_, item gjson.Result) bool {
		item.Get("content").ForEach(func(_, content gjson.Result) bool {
			switch content.Get("type").String() {
			case "output_text", "text":
				if t := content.Get("text").String(); t != "" {
					parts = append(parts, t)
				}
			}
			return true
		})
		return true
	})
	return strings.Join(parts, "\n")
}
