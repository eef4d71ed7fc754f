package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/skycrane/skycrane/internal/errors"
	"github.com/skycrane/skycrane/pkg/jobs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.deps.Version})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := jobs.ListOptions{
		Status: jobs.Status(strings.TrimSpace(q.Get("status"))),
		Type:   strings.TrimSpace(q.Get("type")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Manager.List(opts)})
}

type createJobRequest struct {
	Type   string         `json:"job_type"`
	Params map[string]any `json:"params"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "invalid request body")
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "job_type is required")
		return
	}
	if _, err := s.deps.Registry.Lookup(req.Type); err != nil {
		apperrors.RespondWithError(w, err)
		return
	}

	job := s.deps.Manager.Create(req.Type, req.Params)
	if s.deps.Metrics != nil {
		s.deps.Metrics.JobsCreated.WithLabelValues(job.Type).Inc()
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Manager.Get(id); err != nil {
		apperrors.RespondWithError(w, err)
		return
	}

	cancelled := s.deps.Manager.Cancel(id)
	if cancelled && s.deps.Metrics != nil {
		s.deps.Metrics.JobsCancelled.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "cancelled": cancelled})
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Manager.Get(id)
	if err != nil {
		apperrors.RespondWithError(w, err)
		return
	}

	limit := 200
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "tail must be a non-negative integer")
			return
		}
		limit = n
	}

	resp := map[string]any{"job_id": id, "logs": job.Logs}
	if s.deps.Logs != nil {
		recent, err := s.deps.Logs.GetRecentLogs(id, limit)
		if err != nil {
			apperrors.RespondWithError(w, err)
			return
		}
		resp["captured"] = recent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.deps.Store.ListServers(r.Context())
	if err != nil {
		apperrors.RespondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Store.GetServer(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		apperrors.RespondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.deps.Store.GetServer(r.Context(), name); err != nil {
		apperrors.RespondWithError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	deployments, err := s.deps.Store.ListDeployments(r.Context(), name, limit)
	if err != nil {
		apperrors.RespondWithError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"server": name, "deployments": deployments})
}
