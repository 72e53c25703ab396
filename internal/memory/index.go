package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kestrel-ai/kestrel/internal/embeddings"
)

// Entry is one write-once memory fragment. The (Collection, ID) pair
// is unique; entries are never mutated after ingestion.
type Entry struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Hit is a transient query result. Relevance is normalized to [0,1].
type Hit struct {
	Entry     Entry
	Relevance float64
}

// Persister receives entries as they are ingested so they survive
// process restarts. The index itself is the source of truth for reads.
type Persister interface {
	Save(Entry) error
}

// Index holds collections of embedded entries and answers similarity
// queries over them. Reads may run concurrently across sessions;
// ingestion serializes writes.
type Index struct {
	mu       sync.RWMutex
	entries  map[string][]Entry // keyed by collection
	embedder embeddings.Embedder
	persist  Persister // optional
	logger   *slog.Logger
}

// NewIndex creates an index backed by the given embedder. Pass nil for
// logger to suppress logging.
func NewIndex(embedder embeddings.Embedder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Index{
		entries:  make(map[string][]Entry),
		embedder: embedder,
		logger:   logger,
	}
}

// SetPersister attaches a persistence sink for ingested entries.
func (x *Index) SetPersister(p Persister) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.persist = p
}

// Restore loads previously persisted entries without re-embedding.
// Duplicate (collection, id) pairs are rejected as on ingest.
func (x *Index) Restore(entries []Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range entries {
		if x.lookupLocked(e.Collection, e.ID) {
			return &DuplicateIDError{Collection: e.Collection, ID: e.ID}
		}
		x.entries[e.Collection] = append(x.entries[e.Collection], e)
	}
	return nil
}

// Ingest embeds text and stores it as a new entry in the collection.
func (x *Index) Ingest(ctx context.Context, collection, id, text string, metadata map[string]string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}

	// Reject duplicates before paying for the embedding call.
	x.mu.RLock()
	dup := x.lookupLocked(collection, id)
	x.mu.RUnlock()
	if dup {
		return &DuplicateIDError{Collection: collection, ID: id}
	}

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return &EmbeddingUnavailableError{Err: err}
	}

	entry := Entry{
		ID:         id,
		Collection: collection,
		Text:       text,
		Embedding:  vec,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Re-check under the write lock: a concurrent ingest may have won.
	if x.lookupLocked(collection, id) {
		return &DuplicateIDError{Collection: collection, ID: id}
	}

	x.entries[collection] = append(x.entries[collection], entry)

	if x.persist != nil {
		if err := x.persist.Save(entry); err != nil {
			x.logger.Warn("failed to persist memory entry",
				"collection", collection,
				"id", id,
				"error", err,
			)
		}
	}

	x.logger.Debug("memory entry ingested",
		"collection", collection,
		"id", id,
		"dims", len(vec),
	)
	return nil
}

// Query embeds queryText and returns up to limit entries from the
// collection with relevance >= minRelevance, sorted descending. An
// empty result is a normal outcome, not an error.
func (x *Index) Query(ctx context.Context, collection, queryText string, limit int, minRelevance float64) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	n := len(x.entries[collection])
	x.mu.RUnlock()
	if n == 0 {
		return nil, nil
	}

	queryVec, err := x.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, &EmbeddingUnavailableError{Err: err}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	// Brute-force scan. Collections are session-scale; the contract
	// leaves room for an ANN structure behind the same signature.
	hits := make([]Hit, 0, len(x.entries[collection]))
	for _, e := range x.entries[collection] {
		rel := normalizeRelevance(embeddings.Cosine(queryVec, e.Embedding))
		if rel >= minRelevance {
			hits = append(hits, Hit{Entry: e, Relevance: rel})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Relevance > hits[j].Relevance
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of entries in a collection.
func (x *Index) Len(collection string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries[collection])
}

// Stats returns entry counts per collection.
func (x *Index) Stats() map[string]int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string]int, len(x.entries))
	for c, es := range x.entries {
		out[c] = len(es)
	}
	return out
}

func (x *Index) lookupLocked(collection, id string) bool {
	for _, e := range x.entries[collection] {
		if e.ID == id {
			return true
		}
	}
	return false
}

// normalizeRelevance maps raw cosine similarity [-1,1] onto the [0,1]
// relevance scale.
func normalizeRelevance(cos float32) float64 {
	rel := (1 + float64(cos)) / 2
	if rel < 0 {
		return 0
	}
	if rel > 1 {
		return 1
	}
	return rel
}
