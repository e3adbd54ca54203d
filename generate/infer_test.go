package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{BaseURL: url, APIKey: "sk-test", Model: "test-model"})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost", Model: "m"})
	if c.maxTokens != DefaultMaxTokens {
		t.Errorf("expected max tokens %d, got %d", DefaultMaxTokens, c.maxTokens)
	}
	if c.detail != "high" {
		t.Errorf("expected detail high, got %q", c.detail)
	}
	if c.client == nil {
		t.Fatal("http client should not be nil")
	}
	if c.client.Timeout != 0 {
		t.Errorf("expected no timeout by default, got %v", c.client.Timeout)
	}
	if c.Model() != "m" {
		t.Errorf("expected model m, got %q", c.Model())
	}
}

func TestNewClientNegativeMaxTokensOmitted(t *testing.T) {
	c := NewClient(ClientConfig{MaxTokens: -1})
	data, err := json.Marshal(c.buildRequest(Input{}))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "max_tokens") {
		t.Errorf("expected max_tokens to be omitted, got %s", data)
	}
}

func TestNewClientCustomTimeout(t *testing.T) {
	c := NewClient(ClientConfig{Timeout: 10 * time.Second})
	if c.client.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", c.client.Timeout)
	}
}

func TestAskSendsVisionRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type application/json")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if req.MaxTokens != 3000 {
			t.Errorf("expected max_tokens 3000, got %d", req.MaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("expected one user message, got %+v", req.Messages)
		}
		parts := req.Messages[0].Content
		if len(parts) != 2 {
			t.Fatalf("expected 2 content parts, got %d", len(parts))
		}
		if parts[0].Type != "text" || parts[0].Text != "what is this?" {
			t.Errorf("unexpected text part %+v", parts[0])
		}
		if parts[1].Type != "image_url" || parts[1].ImageURL == nil {
			t.Fatalf("unexpected image part %+v", parts[1])
		}
		if parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
			t.Errorf("unexpected image url %q", parts[1].ImageURL.URL)
		}
		if parts[1].ImageURL.Detail != "high" {
			t.Errorf("expected detail high, got %q", parts[1].ImageURL.Detail)
		}

		w.Write([]byte(`{"model":"test-model-0613","choices":[{"message":{"role":"assistant","content":"A cat."}}],"usage":{"prompt_tokens":100,"completion_tokens":50}}`))
	}))
	defer server.Close()

	answer, err := newTestClient(server.URL).Ask(context.Background(), Input{
		Text:     "what is this?",
		ImageURL: "data:image/png;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.Content != "A cat." {
		t.Errorf("expected 'A cat.', got %q", answer.Content)
	}
	if answer.Model != "test-model-0613" {
		t.Errorf("expected echoed model, got %q", answer.Model)
	}
	if answer.Usage.PromptTokens != 100 || answer.Usage.CompletionTokens != 50 {
		t.Errorf("unexpected usage %+v", answer.Usage)
	}
}

func TestAskOmitsAuthorizationWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no Authorization header")
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{BaseURL: server.URL, Model: "local"})
	if _, err := c.Ask(context.Background(), Input{Text: "t", ImageURL: "u"}); err != nil {
		t.Fatal(err)
	}
}

func TestAskErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Ask(context.Background(), Input{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Incorrect API key provided" {
		t.Errorf("expected API message, got %q", apiErr.Message)
	}
}

func TestAskErrorStatusPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Ask(context.Background(), Input{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if !strings.Contains(apiErr.Message, "upstream down") {
		t.Errorf("expected raw body in message, got %q", apiErr.Message)
	}
}

func TestAskMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing usage", `{"choices":[{"message":{"content":"hi"}}]}`},
		{"no choices", `{"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":1}}`},
		{"null content", `{"choices":[{"message":{"content":null}}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			answer, err := newTestClient(server.URL).Ask(context.Background(), Input{})
			if answer != nil {
				t.Errorf("expected nil answer, got %+v", answer)
			}
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected *MalformedResponseError, got %T: %v", err, err)
			}
		})
	}
}

func TestAskErrorObjectWithOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Ask(context.Background(), Input{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "model overloaded" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestAskNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	if _, err := newTestClient(url).Ask(context.Background(), Input{}); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestAskContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestClient(server.URL).Ask(ctx, Input{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestErrorMessages(t *testing.T) {
	apiErr := &APIError{StatusCode: 500, Message: "boom"}
	if apiErr.Error() != "API error (status 500): boom" {
		t.Errorf("unexpected APIError text %q", apiErr.Error())
	}
	m := &MalformedResponseError{Reason: "usage missing from response"}
	if m.Error() != "malformed response: usage missing from response" {
		t.Errorf("unexpected MalformedResponseError text %q", m.Error())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %q", got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}
