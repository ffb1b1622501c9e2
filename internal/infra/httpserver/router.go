package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appanalysis "github.com/bryanwahyu/codeaudit/internal/application/analysis"
	domai "github.com/bryanwahyu/codeaudit/internal/domain/ai"
	domain "github.com/bryanwahyu/codeaudit/internal/domain/analysis"
	"github.com/bryanwahyu/codeaudit/internal/middleware"
)

type Router struct {
	svc *appanalysis.Service
}

func NewRouter(svc *appanalysis.Service, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{svc: svc}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/projects/{projectID}/analyze", r.wrap(r.handleRunAnalysis))
		rt.Get("/projects/{projectID}/analyses", r.wrap(r.handleListSessions))
		rt.Get("/analyses/{id}", r.wrap(r.handleGetSession))
		rt.Get("/analyses/{id}/export", r.wrap(r.handleExportSession))
		rt.Post("/issues/{id}/resolve", r.wrap(r.handleResolveIssue))
		rt.Post("/issues/{id}/false-positive", r.wrap(r.handleFalsePositive))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidFormat):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domai.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			default:
				// Persistence and other unexpected failures stay opaque to
				// the caller.
				slog.Error("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}
	}
}

func principal(req *http.Request) (string, error) {
	p := middleware.GetPrincipalFromContext(req.Context())
	if p == "" {
		return "", fmt.Errorf("no authenticated principal")
	}
	return p, nil
}

// POST /v1/projects/{projectID}/analyze
func (r *Router) handleRunAnalysis(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	projectID := chi.URLParam(req, "projectID")

	middleware.IncrementAnalyses()
	result, err := r.svc.RunAnalysis(req.Context(), p, projectID)
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/projects/{projectID}/analyses?page=&page_size=
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	projectID := chi.URLParam(req, "projectID")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.ListSessions(req.Context(), p, projectID, page, size)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/analyses/{id}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")

	result, err := r.svc.GetSession(req.Context(), p, id)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/analyses/{id}/export?format=json
func (r *Router) handleExportSession(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	format := req.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	result, err := r.svc.ExportSession(req.Context(), p, id, format)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=analysis-%s.json", id))
	return json.NewEncoder(w).Encode(result)
}

// POST /v1/issues/{id}/resolve
func (r *Router) handleResolveIssue(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")

	issue, err := r.svc.ResolveIssue(req.Context(), p, id)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(issue)
}

// POST /v1/issues/{id}/false-positive
func (r *Router) handleFalsePositive(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")

	issue, err := r.svc.MarkFalsePositive(req.Context(), p, id)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(issue)
}
