// Package compose merges the user's query with semantically retrieved
// background facts into the enriched user turn the model sees.
package compose

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kestrel-ai/kestrel/internal/memory"
)

// Defaults observed to work well for session-scale memory.
const (
	DefaultLimit        = 3
	DefaultMinRelevance = 0.65
)

const noContextMarker = "(no relevant context found)"

// Composer renders the enriched user turn. Given identical memory
// contents and an identical query, the output is byte-identical —
// retrieval results are rank-ordered and the template is fixed.
type Composer struct {
	index        *memory.Index
	collection   string
	limit        int
	minRelevance float64
	logger       *slog.Logger
}

// New creates a composer reading from one collection of the index.
// Pass nil for logger to suppress logging.
func New(index *memory.Index, collection string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Composer{
		index:        index,
		collection:   collection,
		limit:        DefaultLimit,
		minRelevance: DefaultMinRelevance,
		logger:       logger,
	}
}

// SetLimit configures how many hits to include.
func (c *Composer) SetLimit(n int) {
	if n > 0 {
		c.limit = n
	}
}

// SetMinRelevance configures the relevance cutoff.
func (c *Composer) SetMinRelevance(min float64) {
	c.minRelevance = min
}

// Compose returns the text to append as the user turn: the original
// query followed by a labeled block of retrieved facts, or an explicit
// no-context marker. Retrieval failures degrade to the no-context form
// — missing background never blocks a chat turn.
func (c *Composer) Compose(ctx context.Context, userText string) string {
	hits, err := c.index.Query(ctx, c.collection, userText, c.limit, c.minRelevance)
	if err != nil {
		c.logger.Warn("context retrieval failed",
			"collection", c.collection,
			"error", err,
		)
		hits = nil
	}

	var sb strings.Builder
	sb.WriteString(userText)
	sb.WriteString("\n\n")

	if len(hits) == 0 {
		sb.WriteString(noContextMarker)
		return sb.String()
	}

	sb.WriteString("Relevant background:")
	for _, h := range hits {
		sb.WriteString(fmt.Sprintf("\n- %s (relevance: %.2f)", h.Entry.Text, h.Relevance))
	}
	return sb.String()
}
