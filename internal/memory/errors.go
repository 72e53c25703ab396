// Package memory provides the semantic memory index: short text
// fragments stored with vector embeddings and retrieved by similarity.
//
// This file defines the typed errors of the ingestion path.
package memory

import "fmt"

// DuplicateIDError is returned when an entry ID already exists within
// a collection. Ingestion rejects rather than overwrites — a silent
// overwrite would corrupt provenance.
type DuplicateIDError struct {
	Collection string
	ID         string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("entry %q already exists in collection %q", e.ID, e.Collection)
}

// EmbeddingUnavailableError is returned when the embedding service
// cannot produce a vector for the text being ingested.
type EmbeddingUnavailableError struct {
	Err error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding unavailable: %v", e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error {
	return e.Err
}
