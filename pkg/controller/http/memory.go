package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/samber/lo"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
	"github.com/secmon-lab/recall/pkg/utils/safe"
)

// ErrInvalidRequest marks a request rejected by validation
var ErrInvalidRequest = goerr.New("invalid request")

type queryRequest struct {
	Queries []queryInput `json:"queries"`
}

type queryInput struct {
	Query  *string      `json:"query"`
	Filter *filterInput `json:"filter,omitempty"`
	TopK   *int         `json:"top_k,omitempty"`
}

type filterInput struct {
	DocumentID *string    `json:"document_id,omitempty"`
	Source     *string    `json:"source,omitempty"`
	SourceID   *string    `json:"source_id,omitempty"`
	Author     *string    `json:"author,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

type memoryResponse struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

type queryResponse struct {
	Memories []memoryResponse `json:"memories"`
	Count    int              `json:"count"`
}

type upsertRequest struct {
	Documents []documentInput `json:"documents"`
}

type documentInput struct {
	ID       *string        `json:"id,omitempty"`
	Text     *string        `json:"text"`
	Metadata *metadataInput `json:"metadata,omitempty"`
}

type metadataInput struct {
	Source     *string    `json:"source,omitempty"`
	SourceID   *string    `json:"source_id,omitempty"`
	DocumentID *string    `json:"document_id,omitempty"`
	URL        *string    `json:"url,omitempty"`
	Author     *string    `json:"author,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

type upsertResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req queryRequest
	if status, err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, status)
		return
	}

	queries, err := req.toModel(s.limits.MaxQueries, s.limits.MaxTopK)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	result := s.memoryUC.Query(ctx, queries)

	resp := queryResponse{
		Memories: lo.Map(result.Memories, func(v model.MemoryView, _ int) memoryResponse {
			return memoryResponse{
				ID:         v.ID.String(),
				Content:    v.Content,
				Metadata:   v.Metadata,
				Similarity: v.Similarity,
			}
		}),
		Count: result.Count,
	}
	safe.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) upsertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req upsertRequest
	if status, err := decodeJSON(r, &req); err != nil {
		errutil.HandleHTTP(ctx, w, err, status)
		return
	}

	docs, err := req.toModel(s.limits.MaxDocuments)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	ids, err := s.memoryUC.Upsert(ctx, docs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, usecase.ErrEmbeddingUnavailable) {
			status = http.StatusUnprocessableEntity
		}
		errutil.HandleHTTP(ctx, w, err, status)
		return
	}

	safe.WriteJSON(ctx, w, http.StatusOK, upsertResponse{
		IDs: lo.Map(ids, func(id model.MemoryID, _ int) string { return id.String() }),
	})
}

func decodeJSON(r *http.Request, v any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, goerr.Wrap(ErrInvalidRequest, "request body too large",
				goerr.V("limit", maxErr.Limit))
		}
		return http.StatusBadRequest, goerr.Wrap(ErrInvalidRequest, fmt.Sprintf("malformed JSON body: %v", err))
	}
	return 0, nil
}

func invalid(format string, args ...any) error {
	return goerr.Wrap(ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func (req *queryRequest) toModel(maxQueries, maxTopK int) ([]model.Query, error) {
	if len(req.Queries) == 0 {
		return nil, invalid("queries must contain at least one query")
	}
	if len(req.Queries) > maxQueries {
		return nil, invalid("too many queries: %d > %d", len(req.Queries), maxQueries)
	}

	queries := make([]model.Query, len(req.Queries))
	for i, in := range req.Queries {
		if in.Query == nil {
			return nil, invalid("queries[%d].query is required", i)
		}

		q := model.Query{Text: *in.Query}
		if in.TopK != nil {
			if *in.TopK < 1 {
				return nil, invalid("queries[%d].top_k must be at least 1", i)
			}
			if *in.TopK > maxTopK {
				return nil, invalid("queries[%d].top_k must be at most %d", i, maxTopK)
			}
			q.TopK = *in.TopK
		}

		if f := in.Filter; f != nil {
			if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
				return nil, invalid("queries[%d].filter.start_date is after end_date", i)
			}
			q.Filter = &model.MemoryFilter{
				DocumentID: f.DocumentID,
				SourceID:   f.SourceID,
				Source:     f.Source,
				Author:     f.Author,
				StartDate:  f.StartDate,
				EndDate:    f.EndDate,
			}
		}

		queries[i] = q
	}

	return queries, nil
}

func (req *upsertRequest) toModel(maxDocuments int) ([]model.Document, error) {
	if len(req.Documents) == 0 {
		return nil, invalid("documents must contain at least one document")
	}
	if len(req.Documents) > maxDocuments {
		return nil, invalid("too many documents: %d > %d", len(req.Documents), maxDocuments)
	}

	docs := make([]model.Document, len(req.Documents))
	for i, in := range req.Documents {
		if in.Text == nil {
			return nil, invalid("documents[%d].text is required", i)
		}

		doc := model.Document{
			ID:   model.MemoryID(lo.FromPtr(in.ID)),
			Text: *in.Text,
		}

		if md := in.Metadata; md != nil {
			var source types.MemorySource
			if md.Source != nil {
				parsed, err := types.ParseMemorySource(*md.Source)
				if err != nil {
					return nil, invalid("documents[%d].metadata.source: %v", i, err)
				}
				source = parsed
			}
			doc.Metadata = &model.DocumentMetadata{
				Source:     source,
				SourceID:   lo.FromPtr(md.SourceID),
				DocumentID: lo.FromPtr(md.DocumentID),
				URL:        lo.FromPtr(md.URL),
				Author:     lo.FromPtr(md.Author),
				CreatedAt:  md.CreatedAt,
			}
		}

		docs[i] = doc
	}

	return docs, nil
}
