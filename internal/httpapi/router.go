// Package httpapi is the HTTP surface the lifecycle controller serves:
// GET /health (the liveness probe rendezvous.ProbeHealth calls),
// GET /health/status (the aggregated health snapshot), POST /shutdown (the
// graceful-shutdown request rendezvous.RecoverStale issues against a stale
// instance), plus the ingestion/query/job endpoints the CLI and external
// callers use. Routing is github.com/go-chi/chi/v5, grounded on the
// fbrzx-airplane-chat manifest's chi-based local API.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agent-brain/agentbrain/internal/apperrors"
	"github.com/agent-brain/agentbrain/internal/health"
	"github.com/agent-brain/agentbrain/internal/ingest"
	"github.com/agent-brain/agentbrain/internal/jobqueue"
	"github.com/agent-brain/agentbrain/internal/query"
	"github.com/agent-brain/agentbrain/internal/store"
)

// Server wires the component orchestrators into HTTP handlers.
type Server struct {
	Health    *health.Aggregator
	Queue     *jobqueue.Queue
	Orchestra *ingest.Orchestrator
	Query     *query.Orchestrator
	Backend   store.Backend
	Logger    *slog.Logger

	// ShutdownFunc is invoked by POST /shutdown; the lifecycle controller
	// supplies its own Shutdown method here.
	ShutdownFunc func(ctx context.Context) error
}

// Router builds the chi mux. Shutdown is requested, not performed inline:
// the handler triggers ShutdownFunc in a goroutine so the response itself
// can flush first.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/health/status", s.handleHealthStatus)
	r.Get("/health/postgres", s.handlePoolStatus)
	r.Post("/shutdown", s.handleShutdown)

	r.Post("/reset", s.handleReset)

	r.Post("/index", s.handleIndexSubmit)
	r.Post("/query", s.handleQuery)
	r.Get("/jobs", s.handleJobsList)
	r.Get("/jobs/{id}", s.handleJobGet)
	r.Post("/jobs/{id}/cancel", s.handleJobCancel)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Health.Snapshot(r.Context())
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Backend.PoolStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if s.ShutdownFunc != nil {
		go func() {
			if err := s.ShutdownFunc(context.Background()); err != nil {
				s.Logger.Error("shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Backend.Reset(r.Context()); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInternal, err, "reset backend"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type indexRequest struct {
	FolderPath      string   `json:"folder_path"`
	IncludeCode     bool     `json:"include_code"`
	Languages       []string `json:"languages"`
	ExcludePatterns []string `json:"exclude_patterns"`
	Rebuild         bool     `json:"rebuild"`
}

type indexResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleIndexSubmit(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInvalidArgument, err, "decode index request"))
		return
	}
	id, err := s.Queue.Submit(jobqueue.Request{
		FolderPath:      req.FolderPath,
		IncludeCode:     req.IncludeCode,
		Languages:       req.Languages,
		ExcludePatterns: req.ExcludePatterns,
		Rebuild:         req.Rebuild,
	})
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInternal, err, "submit job"))
		return
	}
	writeJSON(w, http.StatusAccepted, indexResponse{JobID: id})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindInvalidArgument, err, "decode query request"))
		return
	}
	results, err := s.Query.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Queue.List())
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.Queue.Get(id)
	if !ok {
		writeError(w, apperrors.New(apperrors.KindNotFound, "job not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Queue.Cancel(id); err != nil {
		writeError(w, apperrors.Wrap(apperrors.KindNotFound, err, "cancel job"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperrors.GetKind(err)
	status := apperrors.HTTPStatus(kind)
	body := map[string]string{"error": err.Error(), "kind": string(kind)}
	if ae, ok := err.(*apperrors.Error); ok {
		body["error"] = apperrors.Message(ae)
	}
	writeJSON(w, status, body)
}
