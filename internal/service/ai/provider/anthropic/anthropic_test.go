package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/schema"
	"github.com/goccy/go-json"
)

func TestGenerateJoinsTextBlocks(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"INVESTMENT"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`)
	}))
	defer server.Close()

	m := New(Config{
		APIKey:         "test",
		BaseURL:        server.URL + "/",
		Model:          "claude-test",
		RequestOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})

	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("route"),
		schema.AssistantMessage("dangling assistant turn", nil),
		schema.UserMessage("what stocks should I buy?"),
	})
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if msg.Content != "INVESTMENT" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if _, ok := captured["system"]; !ok {
		t.Fatalf("expected system blocks in request: %v", captured)
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected leading assistant turn to be dropped, got %d messages", len(msgs))
	}
}

func TestSplitMessagesSkipsEmpty(t *testing.T) {
	system, messages := splitMessages([]*schema.Message{
		schema.SystemMessage("a"),
		schema.UserMessage("  "),
		schema.UserMessage("hello"),
		schema.AssistantMessage("hi", nil),
	})
	if len(system) != 1 || len(messages) != 2 {
		t.Fatalf("unexpected split: system=%d messages=%d", len(system), len(messages))
	}
}
