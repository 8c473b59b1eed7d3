// Package chi exposes the evaluation service over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankeval/internal/domain"
	"github.com/kailas-cloud/rankeval/internal/domain/eval"
	logpkg "github.com/kailas-cloud/rankeval/internal/logger"
	"github.com/kailas-cloud/rankeval/internal/metrics"
	evaluc "github.com/kailas-cloud/rankeval/internal/usecase/evaluation"
	healthuc "github.com/kailas-cloud/rankeval/internal/usecase/health"
)

// ReportReader reads persisted evaluation reports.
type ReportReader interface {
	Get(ctx context.Context, id string) (domain.EvaluationReport, error)
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// Server holds the HTTP handlers.
type Server struct {
	evaluations        *evaluc.Service
	reports            ReportReader
	health             *healthuc.Service
	logger             *zap.Logger
	multiVectorDefault bool
}

// NewServer creates the HTTP API server.
func NewServer(
	evaluations *evaluc.Service,
	reports ReportReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		evaluations: evaluations,
		reports:     reports,
		health:      health,
		logger:      logger,
	}
}

// WithMultiVectorDefault sets the scoring mode used when a request omits
// multi_vector.
func (s *Server) WithMultiVectorDefault(v bool) *Server {
	s.multiVectorDefault = v
	return s
}

// Router builds the chi router with middleware, auth, and all routes.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(RequestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1/evaluations", func(r chi.Router) {
		r.Post("/", s.handleCreateEvaluation)
		r.Get("/", s.handleListEvaluations)
		r.Get("/{id}", s.handleGetEvaluation)
		r.Delete("/{id}", s.handleDeleteEvaluation)
	})

	return r
}

// evaluationRequest is the POST /v1/evaluations body. Either embeddings
// (queries + passages) or a precomputed run must be supplied; qrels are
// always required.
type evaluationRequest struct {
	// MultiVector is a pointer so an omitted field falls back to the
	// server-wide default.
	MultiVector      *bool                         `json:"multi_vector"`
	KeepIdenticalIDs bool                          `json:"keep_identical_ids"`
	KValues          []int                         `json:"k_values"`
	Queries          []itemPayload                 `json:"queries"`
	Passages         []itemPayload                 `json:"passages"`
	Qrels            map[string]map[string]int     `json:"qrels"`
	Run              map[string]map[string]float64 `json:"run"`
}

type itemPayload struct {
	ID      string             `json:"id"`
	Text    string             `json:"text,omitempty"`
	Vector  domain.Vector      `json:"vector,omitempty"`
	Vectors domain.MultiVector `json:"vectors,omitempty"`
}

func (s *Server) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}

	if len(req.Qrels) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "qrels are required")
		return
	}

	var report domain.EvaluationReport
	var err error
	if len(req.Run) > 0 {
		if len(req.Queries) > 0 || len(req.Passages) > 0 {
			writeError(w, http.StatusBadRequest, "validation_failed",
				"request must carry either a run or embeddings, not both")
			return
		}
		report, err = s.evaluations.ComputeMetrics(r.Context(), req.Qrels, req.Run, req.KValues)
	} else {
		multiVector := s.multiVectorDefault
		if req.MultiVector != nil {
			multiVector = *req.MultiVector
		}
		report, err = s.evaluations.Evaluate(r.Context(), evaluc.Request{
			Queries:          toItems(req.Queries),
			Passages:         toItems(req.Passages),
			Qrels:            req.Qrels,
			KValues:          req.KValues,
			MultiVector:      multiVector,
			KeepIdenticalIDs: req.KeepIdenticalIDs,
		})
	}
	if err != nil {
		s.handleError(w, r, err, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.reports.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err, "get report failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.reports.ListIDs(r.Context())
	if err != nil {
		s.handleError(w, r, err, "list reports failed")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

func (s *Server) handleDeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.reports.Get(r.Context(), id); err != nil {
		s.handleError(w, r, err, "delete report failed")
		return
	}
	if err := s.reports.Delete(r.Context(), id); err != nil {
		s.handleError(w, r, err, "delete report failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleError maps domain errors to HTTP statuses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report_not_found", err.Error())
	case errors.Is(err, domain.ErrNoQueries),
		errors.Is(err, domain.ErrNoPassages),
		errors.Is(err, domain.ErrNoQrels),
		errors.Is(err, domain.ErrNoRun),
		errors.Is(err, eval.ErrNoKValues),
		errors.Is(err, domain.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrTokenBudgetExceeded):
		writeError(w, http.StatusTooManyRequests, "budget_exceeded", err.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error", err.Error())
	default:
		logpkg.FromContext(r.Context()).Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func toItems(payloads []itemPayload) []evaluc.Item {
	items := make([]evaluc.Item, len(payloads))
	for i, p := range payloads {
		items[i] = evaluc.Item{
			ID:      p.ID,
			Text:    p.Text,
			Vector:  p.Vector,
			Vectors: p.Vectors,
		}
	}
	return items
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
