package conversation

import (
	"fmt"
	"testing"

	"github.com/kestrel-ai/kestrel/internal/llm"
)

func TestAppendPreservesOrder(t *testing.T) {
	l := NewLog("")

	for i := 0; i < 20; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := l.Append(Turn{Role: role, Content: fmt.Sprintf("turn %d", i)}); err != nil {
			t.Fatalf("Append(%d) error: %v", i, err)
		}
	}

	snap := l.Snapshot()
	if len(snap) != 20 {
		t.Fatalf("Snapshot() length = %d, want 20", len(snap))
	}
	for i, turn := range snap {
		want := fmt.Sprintf("turn %d", i)
		if turn.Content != want {
			t.Errorf("snapshot[%d].Content = %q, want %q", i, turn.Content, want)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewLog("")
	l.Append(Turn{Role: RoleUser, Content: "original"})

	snap := l.Snapshot()
	snap[0].Content = "mutated"

	if got := l.Snapshot()[0].Content; got != "original" {
		t.Errorf("log content = %q after mutating snapshot, want %q", got, "original")
	}
}

func TestAppendValidation(t *testing.T) {
	tests := []struct {
		name    string
		turn    Turn
		wantErr bool
	}{
		{"user with content", Turn{Role: RoleUser, Content: "hi"}, false},
		{"user without content", Turn{Role: RoleUser}, true},
		{"assistant without content", Turn{Role: RoleAssistant}, true},
		{
			"assistant with tool calls only",
			Turn{Role: RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("tc1", "echo", nil)}},
			false,
		},
		{"tool without content", Turn{Role: RoleTool, ToolCallID: "tc1"}, false},
		{"unknown role", Turn{Role: "narrator", Content: "hi"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := NewLog("").Append(tc.turn)
			if (err != nil) != tc.wantErr {
				t.Errorf("Append() error = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewLogSystemPrompt(t *testing.T) {
	l := NewLog("be terse")
	snap := l.Snapshot()
	if len(snap) != 1 || snap[0].Role != RoleSystem || snap[0].Content != "be terse" {
		t.Fatalf("NewLog system turn = %+v", snap)
	}

	if got := NewLog("").Len(); got != 0 {
		t.Errorf("empty prompt log length = %d, want 0", got)
	}
}

func TestMessagesConversion(t *testing.T) {
	l := NewLog("sys")
	l.Append(Turn{Role: RoleUser, Content: "question"})
	l.Append(Turn{Role: RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("tc1", "echo", map[string]any{"text": "x"})}})
	l.Append(Turn{Role: RoleTool, Content: "x", ToolCallID: "tc1"})

	msgs := l.Messages()
	if len(msgs) != 4 {
		t.Fatalf("Messages() length = %d, want 4", len(msgs))
	}
	if msgs[2].ToolCalls[0].ID != "tc1" {
		t.Errorf("assistant message lost tool call ID")
	}
	if msgs[3].ToolCallID != "tc1" {
		t.Errorf("tool message ToolCallID = %q, want %q", msgs[3].ToolCallID, "tc1")
	}
}
