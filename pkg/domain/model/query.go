package model

import (
	"time"

	"github.com/secmon-lab/recall/pkg/domain/types"
)

// Query is a single natural-language lookup
type Query struct {
	Text   string
	Filter *MemoryFilter
	TopK   int
}

// Document is an input to upsert. ID is optional.
type Document struct {
	ID       MemoryID
	Text     string
	Metadata *DocumentMetadata
}

// DocumentMetadata carries the optional attributes of a document.
// Empty strings and a nil CreatedAt mean "not provided".
type DocumentMetadata struct {
	Source     types.MemorySource
	SourceID   string
	DocumentID string
	URL        string
	Author     string
	CreatedAt  *time.Time
}

// ToMemory maps the document into the store's write shape
func (d *Document) ToMemory(embedding []float32) *Memory {
	m := &Memory{
		ID:        d.ID,
		Content:   d.Text,
		Embedding: embedding,
	}
	if md := d.Metadata; md != nil {
		m.Source = md.Source
		m.SourceID = md.SourceID
		m.DocumentID = md.DocumentID
		m.URL = md.URL
		m.Author = md.Author
		if md.CreatedAt != nil {
			m.CreatedAt = *md.CreatedAt
		}
	}
	return m
}

// MemoryView is the caller-facing projection of a search hit
type MemoryView struct {
	ID         MemoryID
	Content    string
	Similarity float64
	Metadata   map[string]any
}

// Metadata keys of MemoryView
const (
	MetadataSource     = "source"
	MetadataSourceID   = "source_id"
	MetadataDocumentID = "document_id"
	MetadataURL        = "url"
	MetadataAuthor     = "author"
	MetadataCreatedAt  = "created_at"
)

// NewMemoryView projects a scored memory. Unset attributes are present in
// the metadata bag with a nil value.
func NewMemoryView(sm *ScoredMemory) MemoryView {
	return MemoryView{
		ID:         sm.ID,
		Content:    sm.Content,
		Similarity: sm.Similarity,
		Metadata: map[string]any{
			MetadataSource:     optional(sm.Source.String()),
			MetadataSourceID:   optional(sm.SourceID),
			MetadataDocumentID: optional(sm.DocumentID),
			MetadataURL:        optional(sm.URL),
			MetadataAuthor:     optional(sm.Author),
			MetadataCreatedAt:  sm.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// QueryResult is the aggregated answer to a batch of queries
type QueryResult struct {
	Memories []MemoryView
	Count    int
}

// NewQueryResult builds a result from views, keeping Count consistent
func NewQueryResult(views []MemoryView) *QueryResult {
	if views == nil {
		views = []MemoryView{}
	}
	return &QueryResult{
		Memories: views,
		Count:    len(views),
	}
}
