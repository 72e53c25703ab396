package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient talks to the Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates an Ollama chat client. An empty baseURL
// falls back to the local default.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // large models with tools need time
		},
	}
}

// chatRequest is the Ollama chat API wire format.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *Options         `json:"options,omitempty"`
}

// chatResponse is the Ollama chat API wire format.
type chatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat completion request.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts *Options) (*ChatResponse, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Tools:    tools,
		Options:  opts,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(errBody))
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	msg := wire.Message
	// Some models emit tool calls as JSON in the content instead of the
	// native tool_calls field. Salvage those so the loop sees one shape.
	if len(msg.ToolCalls) == 0 && msg.Content != "" {
		if parsed := parseTextToolCalls(msg.Content); len(parsed) > 0 {
			msg.ToolCalls = parsed
			msg.Content = ""
		}
	}

	return &ChatResponse{
		Model:         wire.Model,
		CreatedAt:     wire.CreatedAt,
		Message:       msg,
		Done:          wire.Done,
		InputTokens:   wire.PromptEvalCount,
		OutputTokens:  wire.EvalCount,
		TotalDuration: time.Duration(wire.TotalDuration),
	}, nil
}

// Ping checks whether the Ollama server is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// parseTextToolCalls extracts tool calls a model wrote into its text
// output. Handles a bare JSON object, a JSON array, and <tool_call>
// tagged blocks.
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type wireCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	var many []wireCall
	if err := json.Unmarshal([]byte(content), &many); err == nil && len(many) > 0 {
		out := make([]ToolCall, 0, len(many))
		for _, c := range many {
			if c.Name == "" {
				return nil
			}
			out = append(out, NewToolCall("", c.Name, c.Arguments))
		}
		return out
	}

	var one wireCall
	if err := json.Unmarshal([]byte(content), &one); err == nil && one.Name != "" {
		return []ToolCall{NewToolCall("", one.Name, one.Arguments)}
	}

	return nil
}
