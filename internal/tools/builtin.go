package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-ai/kestrel/internal/memory"
)

// memoryCollection is where the built-in fact tools read and write.
const memoryCollection = "facts"

// RegisterBuiltins adds the standard tool set: long-term memory
// storage/recall backed by the semantic index, and the current time.
func RegisterBuiltins(r *Registry, index *memory.Index) error {
	builtins := []Descriptor{
		{
			Name: "remember_fact",
			Description: "Store a fact in long-term memory for future conversations. " +
				"Use when the user shares a lasting preference, detail, or decision worth keeping.",
			Parameters: map[string]Param{
				"text": {
					Type:        "string",
					Description: "The fact to remember, phrased as a standalone sentence",
					Required:    true,
				},
				"topic": {
					Type:        "string",
					Description: "Optional short topic label (e.g. preferences, projects)",
				},
			},
			Handler: rememberFact(index),
		},
		{
			Name: "recall_facts",
			Description: "Search long-term memory for facts related to a query. " +
				"Use when earlier conversations may hold relevant details.",
			Parameters: map[string]Param{
				"query": {
					Type:        "string",
					Description: "What to look for",
					Required:    true,
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum facts to return (default 5)",
				},
			},
			Handler: recallFacts(index),
		},
		{
			Name:        "current_time",
			Description: "Get the current date and time.",
			Parameters:  map[string]Param{},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return time.Now().Format(time.RFC1123), nil
			},
		},
	}

	for _, d := range builtins {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("register builtin: %w", err)
		}
	}
	return nil
}

func rememberFact(index *memory.Index) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		text, _ := args["text"].(string)
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("text is required")
		}

		metadata := map[string]string{}
		if topic, ok := args["topic"].(string); ok && topic != "" {
			metadata["topic"] = topic
		}

		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate entry ID: %w", err)
		}

		if err := index.Ingest(ctx, memoryCollection, id.String(), text, metadata); err != nil {
			return "", err
		}
		return fmt.Sprintf("Remembered: %s", text), nil
	}
}

func recallFacts(index *memory.Index) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return "", fmt.Errorf("query is required")
		}

		limit := 5
		if l, ok := args["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}

		hits, err := index.Query(ctx, memoryCollection, query, limit, 0.5)
		if err != nil {
			return "", err
		}
		if len(hits) == 0 {
			return "No stored facts matched the query.", nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Found %d fact(s):\n", len(hits)))
		for _, h := range hits {
			sb.WriteString(fmt.Sprintf("- %s (relevance: %.2f)\n", h.Entry.Text, h.Relevance))
		}
		return sb.String(), nil
	}
}
