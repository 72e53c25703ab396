// Package llm defines the language-model service boundary.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message exchanged with the model.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool responses
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"` // provider-assigned; synthesized when absent
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// NewToolCall builds a ToolCall. The nested Function struct is awkward
// to construct as a literal, so providers and tests use this instead.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	var tc ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

// Options are per-request model parameters. The agent loop pins
// Temperature at zero so tool selection stays reproducible.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatResponse is the provider-neutral response for one model call.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
}

// Client is the contract the agent loop needs from a model provider.
// One call per round; responses are fully buffered before the loop
// inspects them.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any, opts *Options) (*ChatResponse, error)
}
