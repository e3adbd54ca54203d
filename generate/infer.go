// Package generate builds and sends vision requests to an OpenAI-compatible API.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	askdir "github.com/Paranoid-AF/askdir"
)

// DefaultMaxTokens is used when the config does not set a budget.
const DefaultMaxTokens = 3000

// DefaultDetail is the image detail hint sent with every image.
const DefaultDetail = "high"

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Detail    string
	// Timeout bounds a whole request. Zero leaves the transport default.
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client sends vision requests to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	detail    string
	client    *http.Client
}

// NewClient creates a client from config.
func NewClient(cfg ClientConfig) *Client {
	switch {
	case cfg.MaxTokens == 0:
		cfg.MaxTokens = DefaultMaxTokens
	case cfg.MaxTokens < 0:
		// Omitted from the request; the API picks a limit.
		cfg.MaxTokens = 0
	}
	if cfg.Detail == "" {
		cfg.Detail = DefaultDetail
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		detail:    cfg.Detail,
		client:    httpClient,
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Input is one question about one image.
type Input struct {
	// Text is the rendered instruction, prompt included.
	Text string
	// ImageURL is usually a data URI built by DataURI.
	ImageURL string
}

// Ask sends a single-turn request with text and an image and returns the answer.
func (c *Client) Ask(ctx context.Context, in Input) (*askdir.Answer, error) {
	data, err := json.Marshal(c.buildRequest(in))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(body)}
	}

	return parseResponse(body)
}

func (c *Client) buildRequest(in Input) chatRequest {
	return chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: in.Text},
					{Type: "image_url", ImageURL: &imageURL{URL: in.ImageURL, Detail: c.detail}},
				},
			},
		},
		MaxTokens: c.maxTokens,
	}
}

// setHeaders sets common headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// --- Chat Completions API ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content *string `json:"content"`
	} `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func parseResponse(body []byte) (*askdir.Answer, error) {
	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &MalformedResponseError{Reason: "invalid JSON: " + err.Error(), Body: truncate(string(body), 512)}
	}

	if result.Error != nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: result.Error.Message}
	}

	if len(result.Choices) == 0 {
		return nil, &MalformedResponseError{Reason: "no choices in response", Body: truncate(string(body), 512)}
	}
	content := result.Choices[0].Message.Content
	if content == nil {
		return nil, &MalformedResponseError{Reason: "first choice has no message content", Body: truncate(string(body), 512)}
	}
	if result.Usage == nil {
		return nil, &MalformedResponseError{Reason: "usage missing from response", Body: truncate(string(body), 512)}
	}

	return &askdir.Answer{
		Content: *content,
		Model:   result.Model,
		Usage: askdir.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
		},
	}, nil
}

// apiErrorMessage extracts error.message from an error body, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var result chatResponse
	if err := json.Unmarshal(body, &result); err == nil && result.Error != nil && result.Error.Message != "" {
		return result.Error.Message
	}
	return truncate(string(body), 512)
}

// truncate truncates s to maxBytes, appending "..." if truncated.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "..."
}
