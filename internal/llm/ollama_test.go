package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Options == nil || req.Options.Temperature != 0 {
			t.Errorf("expected pinned temperature, got %+v", req.Options)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:           req.Model,
			Message:         Message{Role: "assistant", Content: "hello"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	resp, err := c.Chat(context.Background(), "test-model", []Message{{Role: "user", Content: "hi"}}, nil, &Options{Temperature: 0})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "hello")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL)
	_, err := c.Chat(context.Background(), "missing", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCalls int
		wantName  string
	}{
		{
			name:      "single object",
			content:   `{"name": "get_time", "arguments": {"zone": "UTC"}}`,
			wantCalls: 1,
			wantName:  "get_time",
		},
		{
			name:      "array",
			content:   `[{"name": "a", "arguments": {}}, {"name": "b", "arguments": {}}]`,
			wantCalls: 2,
			wantName:  "a",
		},
		{
			name:      "tagged",
			content:   `<tool_call>{"name": "recall_facts", "arguments": {"query": "x"}}</tool_call>`,
			wantCalls: 1,
			wantName:  "recall_facts",
		},
		{
			name:      "tagged without closing tag",
			content:   `<tool_call>{"name": "recall_facts", "arguments": {}}`,
			wantCalls: 1,
			wantName:  "recall_facts",
		},
		{
			name:      "plain text",
			content:   "The weather is nice today.",
			wantCalls: 0,
		},
		{
			name:      "json without name",
			content:   `{"arguments": {}}`,
			wantCalls: 0,
		},
		{
			name:      "empty",
			content:   "",
			wantCalls: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseTextToolCalls(tc.content)
			if len(got) != tc.wantCalls {
				t.Fatalf("parseTextToolCalls() returned %d calls, want %d", len(got), tc.wantCalls)
			}
			if tc.wantCalls > 0 && got[0].Function.Name != tc.wantName {
				t.Errorf("first call name = %q, want %q", got[0].Function.Name, tc.wantName)
			}
		})
	}
}
