package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
)

// MemoryUseCase is the part of usecase.MemoryUseCase served over HTTP
type MemoryUseCase interface {
	Query(ctx context.Context, queries []model.Query) *model.QueryResult
	Upsert(ctx context.Context, docs []model.Document) ([]model.MemoryID, error)
}

// RequestLimits bounds the size of a single request
type RequestLimits struct {
	MaxQueries   int
	MaxTopK      int
	MaxDocuments int
	MaxBodyBytes int64
}

// DefaultRequestLimits keeps a document batch within one Firestore
// transaction and top_k within the Firestore nearest-neighbor limit
func DefaultRequestLimits() RequestLimits {
	return RequestLimits{
		MaxQueries:   100,
		MaxTopK:      1000,
		MaxDocuments: 500,
		MaxBodyBytes: 10 << 20,
	}
}

type Server struct {
	router    *chi.Mux
	memoryUC  MemoryUseCase
	authToken string
	version   string
	limits    RequestLimits
}

type Options func(*Server)

// WithAuthToken requires "Authorization: Bearer <token>" on the memory endpoints
func WithAuthToken(token string) Options {
	return func(s *Server) {
		s.authToken = token
	}
}

func WithVersion(version string) Options {
	return func(s *Server) {
		s.version = version
	}
}

// WithRequestLimits overrides non-zero limits
func WithRequestLimits(limits RequestLimits) Options {
	return func(s *Server) {
		if limits.MaxQueries > 0 {
			s.limits.MaxQueries = limits.MaxQueries
		}
		if limits.MaxTopK > 0 {
			s.limits.MaxTopK = limits.MaxTopK
		}
		if limits.MaxDocuments > 0 {
			s.limits.MaxDocuments = limits.MaxDocuments
		}
		if limits.MaxBodyBytes > 0 {
			s.limits.MaxBodyBytes = limits.MaxBodyBytes
		}
	}
}

func New(memoryUC MemoryUseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:   r,
		memoryUC: memoryUC,
		version:  "dev",
		limits:   DefaultRequestLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.rootHandler)
	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(bearerAuth(s.authToken))
		}
		r.Use(bodyLimit(s.limits.MaxBodyBytes))

		r.Post("/query", s.queryHandler)
		r.Post("/upsert", s.upsertHandler)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger logs each request and stores a request-scoped logger in the context
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	safe.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{
		"message": "recall memory retrieval service",
		"version": s.version,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	safe.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
