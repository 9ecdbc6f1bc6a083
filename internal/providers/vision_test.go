package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestOpenAIVision_Generate(t *testing.T) {
	t.Run("sends images and JSON mode", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1700000000,
				"model": "gpt-4o-mini",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"score\": 72}"}}]
			}`))
		}))
		defer server.Close()

		v := NewOpenAIVision(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
		text, err := v.Generate(context.Background(), &GenerateRequest{
			Model:       "gpt-4o-mini",
			System:      "You are an examiner.",
			Prompt:      "Grade this.",
			Images:      []Image{{Data: []byte("png-1")}, {Data: []byte("png-2")}},
			Temperature: 0.3,
			JSON:        true,
		})
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if text != `{"score": 72}` {
			t.Errorf("unexpected text: %q", text)
		}

		if got["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected model: %v", got["model"])
		}
		rf, _ := got["response_format"].(map[string]any)
		if rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", got["response_format"])
		}
		msgs, _ := got["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("expected system + user messages, got %d", len(msgs))
		}
		user, _ := msgs[1].(map[string]any)
		parts, _ := user["content"].([]any)
		if len(parts) != 3 {
			t.Errorf("expected text + 2 image parts, got %d", len(parts))
		}
	})

	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		target    error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`, true, ErrRateLimited},
		{"unavailable", http.StatusServiceUnavailable, `{"error": {"message": "busy"}}`, true, ErrOverloaded},
		{"bad request", http.StatusBadRequest, `{"error": {"message": "bad image"}}`, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			v := NewOpenAIVision(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
			_, err := v.Generate(context.Background(), &GenerateRequest{Model: "m", Prompt: "p"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v (err=%v)", IsRetryable(err), tt.retryable, err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("expected APIError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"503", genai.APIError{Code: 503, Message: "The model is overloaded. Please try again later.", Status: "UNAVAILABLE"}, ErrOverloaded},
		{"429", genai.APIError{Code: 429, Message: "Resource has been exhausted", Status: "RESOURCE_EXHAUSTED"}, ErrRateLimited},
		{"overloaded message", genai.APIError{Code: 500, Message: "model overloaded"}, ErrOverloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGeminiError(tt.err)
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}

	t.Run("non API error is not retryable", func(t *testing.T) {
		err := classifyGeminiError(errors.New("invalid argument"))
		if IsRetryable(err) {
			t.Errorf("expected non-retryable, got %v", err)
		}
	})
}

func TestMockVision_Scripted(t *testing.T) {
	m := &MockVision{
		Responses: []string{"", "ok"},
		Errors:    []error{&APIError{Provider: "mock", StatusCode: 503, Message: "busy"}, nil},
	}
	ctx := context.Background()

	if _, err := m.Generate(ctx, &GenerateRequest{Model: "a"}); !errors.Is(err, ErrOverloaded) {
		t.Fatalf("first call should fail overloaded, got %v", err)
	}
	text, err := m.Generate(ctx, &GenerateRequest{Model: "b", Images: []Image{{}}})
	if err != nil || text != "ok" {
		t.Fatalf("second call = %q, %v", text, err)
	}
	calls := m.Calls()
	if len(calls) != 2 || calls[0].Model != "a" || calls[1].Images != 1 {
		t.Errorf("unexpected calls: %+v", calls)
	}
}
