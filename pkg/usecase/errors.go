package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// ErrEmbeddingUnavailable is returned by upsert when a document could not
	// be embedded. Writing it without a vector would hide it from search.
	ErrEmbeddingUnavailable = goerr.New("embedding unavailable for document")
)

// Context keys for error values
const (
	DocumentIndexKey = "document_index"
	QueryIndexKey    = "query_index"
)
