// Package chi serves the read-only ops API: health, metrics, persisted
// matches and the dictionary integrity report.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	dommatch "github.com/kailas-cloud/escomatch/internal/domain/match"
	healthuc "github.com/kailas-cloud/escomatch/internal/usecase/health"
)

// Error codes of the JSON error body.
const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeInternal     = "internal_error"
)

// MatchReader reads persisted match results.
type MatchReader interface {
	Get(ctx context.Context, postingID string) (dommatch.Result, error)
	List(ctx context.Context, status dommatch.Status) ([]dommatch.Result, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IssueResponse is one dictionary integrity warning.
type IssueResponse struct {
	Source string `json:"source"`
	Key    string `json:"key"`
	Label  string `json:"label"`
	ISCO   string `json:"isco_code"`
	Reason string `json:"reason"`
}

// IssuesResponse is the dictionary integrity report.
type IssuesResponse struct {
	MatchingVersion string          `json:"matching_version"`
	Count           int             `json:"count"`
	Issues          []IssueResponse `json:"issues"`
}

// MatchListResponse lists persisted matches.
type MatchListResponse struct {
	Count int               `json:"count"`
	Items []dommatch.Result `json:"items"`
}

// Server implements the ops API handlers.
type Server struct {
	matches MatchReader
	health  HealthChecker
	issues  []domain.DictionaryIntegrityWarning
	version string
	logger  *zap.Logger
}

// NewServer creates the ops server. issues is the integrity report computed at startup.
func NewServer(
	matches MatchReader,
	health HealthChecker,
	issues []domain.DictionaryIntegrityWarning,
	matchingVersion string,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		matches: matches,
		health:  health,
		issues:  issues,
		version: matchingVersion,
		logger:  logger,
	}
}

// Routes registers the handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/matches", s.ListMatches)
		r.Get("/matches/{postingID}", s.GetMatch)
		r.Get("/dictionary/issues", s.DictionaryIssues)
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// GetMatch handles GET /v1/matches/{postingID}.
func (s *Server) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postingID")
	res, err := s.matches.Get(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListMatches handles GET /v1/matches?status=NEEDS_REVIEW.
func (s *Server) ListMatches(w http.ResponseWriter, r *http.Request) {
	var status dommatch.Status
	if v := r.URL.Query().Get("status"); v != "" {
		parsed, err := dommatch.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		status = parsed
	}

	items, err := s.matches.List(r.Context(), status)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MatchListResponse{Count: len(items), Items: items})
}

// DictionaryIssues handles GET /v1/dictionary/issues.
func (s *Server) DictionaryIssues(w http.ResponseWriter, _ *http.Request) {
	out := make([]IssueResponse, len(s.issues))
	for i, is := range s.issues {
		out[i] = IssueResponse{Source: is.Source, Key: is.Key, Label: is.Label, ISCO: is.ISCO, Reason: is.Reason}
	}
	writeJSON(w, http.StatusOK, IssuesResponse{MatchingVersion: s.version, Count: len(out), Issues: out})
}

func (s *Server) handleError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, codeNotFound, domain.ErrNotFound.Error())
		return
	}
	s.logger.Error("Ops API request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
