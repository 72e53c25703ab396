// Package conversation provides the append-only turn log that feeds
// every model call.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-ai/kestrel/internal/llm"
)

// Turn roles. A tool turn carries the output of a tool invocation and
// must causally follow the assistant turn that requested it.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one atomic unit of conversation. Turns are never mutated
// after being appended.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Log is the ordered, append-only record of a single conversation.
// It is owned by exactly one session.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewLog creates an empty log. A non-empty systemPrompt becomes the
// first turn.
func NewLog(systemPrompt string) *Log {
	l := &Log{}
	if systemPrompt != "" {
		l.turns = append(l.turns, Turn{
			Role:      RoleSystem,
			Content:   systemPrompt,
			Timestamp: time.Now().UTC(),
		})
	}
	return l
}

// Append adds a turn to the end of the log. User and assistant turns
// must carry content, except assistant turns that request tools.
func (l *Log) Append(t Turn) error {
	switch t.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("unknown turn role %q", t.Role)
	}

	if t.Content == "" {
		switch t.Role {
		case RoleUser:
			return fmt.Errorf("user turn requires content")
		case RoleAssistant:
			if len(t.ToolCalls) == 0 {
				return fmt.Errorf("assistant turn requires content or tool calls")
			}
		}
	}

	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
	return nil
}

// Snapshot returns a copy of the log in insertion order.
func (l *Log) Snapshot() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of turns in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Messages converts the log snapshot into the wire shape the model
// service consumes. Conversion happens here so the log stays the
// single source of truth.
func (l *Log) Messages() []llm.Message {
	turns := l.Snapshot()
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{
			Role:       t.Role,
			Content:    t.Content,
			ToolCalls:  t.ToolCalls,
			ToolCallID: t.ToolCallID,
		}
	}
	return msgs
}
