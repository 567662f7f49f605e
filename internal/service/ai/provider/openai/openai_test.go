package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/option"
)

func TestGenerateReturnsFirstChoice(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"SPENDING"}}]}`)
	}))
	defer server.Close()

	m := New(Config{
		APIKey:         "test",
		BaseURL:        server.URL + "/",
		Model:          "gpt-test",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("route"),
		schema.UserMessage("how much did I spend?"),
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Content != "SPENDING" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if captured["model"] != "gpt-test" {
		t.Fatalf("unexpected model in request: %v", captured["model"])
	}
	if msgs, ok := captured["messages"].([]any); !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", captured["messages"])
	}
}

func TestGenerateSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	m := New(Config{
		APIKey:         "bad",
		BaseURL:        server.URL + "/",
		Model:          "gpt-test",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})
	if _, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")}); err == nil {
		t.Fatal("expected error")
	}
}
