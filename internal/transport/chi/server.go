package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/domain"
	"github.com/openshelf/bookdex/internal/domain/book"
	"github.com/openshelf/bookdex/internal/domain/search/request"
	logpkg "github.com/openshelf/bookdex/internal/logger"
	healthuc "github.com/openshelf/bookdex/internal/usecase/health"
	retrievaluc "github.com/openshelf/bookdex/internal/usecase/retrieval"
)

// coverURLTemplate builds a cover image URL from a catalog cover id.
// default=false makes the image host 404 instead of serving a placeholder.
const coverURLTemplate = "https://covers.openlibrary.org/b/id/%d-M.jpg?default=false"

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeValidationFailed = "validation_failed"
	codeKeyNotFound      = "key_not_found"
	codeProviderError    = "embedding_provider_error"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the retrieval engine over HTTP.
type Server struct {
	engine        *retrievaluc.Engine
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(engine *retrievaluc.Engine, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		engine: engine,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrKeyNotFound, http.StatusNotFound, codeKeyNotFound),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Register mounts all routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Post("/search", s.Search)
	r.Get("/similar/{key}", s.Similar)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// SearchRequestBody is the POST /search payload.
type SearchRequestBody struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// SearchResultItem is one ranked result in an API response.
type SearchResultItem struct {
	BookID          string  `json:"book_id"`
	Score           float64 `json:"score"`
	Title           string  `json:"title,omitempty"`
	Snippet         string  `json:"snippet,omitempty"`
	CoverID         *int64  `json:"cover_i,omitempty"`
	CoverURL        string  `json:"cover_url,omitempty"`
	FullDescription string  `json:"full_description,omitempty"`
}

// SearchResponse is the POST /search response body.
type SearchResponse struct {
	Query   string             `json:"query"`
	K       int                `json:"k"`
	Results []SearchResultItem `json:"results"`
}

// SeedInfo describes the seed book of a similarity query.
type SeedInfo struct {
	BookID   string  `json:"book_id"`
	Score    float64 `json:"score"`
	Title    string  `json:"title,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	CoverID  *int64  `json:"cover_i,omitempty"`
	CoverURL string  `json:"cover_url,omitempty"`
}

// SimilarResponse is the GET /similar/{key} response body.
type SimilarResponse struct {
	Seed    SeedInfo           `json:"seed"`
	Query   string             `json:"query"`
	K       int                `json:"k"`
	Results []SearchResultItem `json:"results"`
}

// HealthResponse is the GET /health response body.
type HealthResponse struct {
	Status    string            `json:"status"`
	IndexSize int               `json:"index_size"`
	Checks    map[string]string `json:"checks"`
}

// ErrorResponse is the error body for all non-2xx responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := request.New(body.Query, body.K)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits, err := s.engine.SearchByText(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query(),
		K:       req.TopK(),
		Results: s.resultsToAPI(hits),
	})
}

// Similar handles GET /similar/{key}.
func (s *Server) Similar(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "k must be an integer")
			return
		}
		k = parsed
	}

	req, err := request.NewSimilar(key, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	seed, err := s.engine.Seed(req.Key())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits, err := s.engine.SearchByKey(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SimilarResponse{
		Seed:    s.seedToAPI(seed),
		Query:   "similar:" + req.Key(),
		K:       req.TopK(),
		Results: s.resultsToAPI(hits),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    string(report.Status),
		IndexSize: report.IndexSize,
		Checks:    checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) resultsToAPI(hits []book.Hit) []SearchResultItem {
	items := make([]SearchResultItem, len(hits))
	for i, h := range hits {
		items[i] = SearchResultItem{
			BookID:          h.Key,
			Score:           h.Score,
			Title:           h.Title,
			Snippet:         h.Snippet,
			CoverID:         h.CoverID,
			FullDescription: s.engine.Description(h.Key),
		}
		if h.CoverID != nil {
			items[i].CoverURL = fmt.Sprintf(coverURLTemplate, *h.CoverID)
		}
	}
	return items
}

// seedToAPI renders the seed book with a fixed score of 1.0: the seed is,
// by construction, its own nearest neighbor.
func (s *Server) seedToAPI(m book.Meta) SeedInfo {
	info := SeedInfo{
		BookID:  m.Key,
		Score:   1.0,
		Title:   m.Title,
		Snippet: s.engine.Snippet(m.Key, 0),
	}
	if m.CoverID != 0 {
		cover := m.CoverID
		info.CoverID = &cover
		info.CoverURL = fmt.Sprintf(coverURLTemplate, cover)
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrKeyNotFound,
		domain.ErrInvalidQuery,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
