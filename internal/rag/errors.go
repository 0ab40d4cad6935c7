package rag

import "errors"

var (
	// ErrEmptyDocument rejects ingestion before any I/O happens.
	ErrEmptyDocument = errors.New("document text is empty")

	// ErrEmptyQuery rejects retrieval before any I/O happens.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrEmbedderMismatch is returned when an agent's documents were
	// embedded with a different model than the one configured for
	// queries. Mixing embedding spaces degrades relevance silently, so
	// it is refused outright.
	ErrEmbedderMismatch = errors.New("embedding model mismatch between ingestion and query")
)
