// SPDX-License-Identifier: Apache-2.0

// Package httpapi exposes the incident resolution pipeline and the
// experience memory over a plain HTTP+JSON surface.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mendsys/mend/pkg/errors"
	"github.com/mendsys/mend/pkg/health"
	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/memory"
	"github.com/mendsys/mend/pkg/pipeline"
)

// Resolver runs the full triage/resolve/critique pipeline for one incident.
type Resolver interface {
	Resolve(ctx context.Context, inc *incident.Incident) (*pipeline.Result, error)
}

// Server routes HTTP+JSON requests to the pipeline and the experience store.
type Server struct {
	resolver Resolver
	store    memory.Store
	health   *health.Registry
	logger   *slog.Logger
}

// ServerOption configures the HTTP server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealth sets the component health registry backing /healthz.
func WithHealth(reg *health.Registry) ServerOption {
	return func(s *Server) { s.health = reg }
}

// New creates an HTTP+JSON server for the given pipeline and store.
func New(resolver Resolver, store memory.Store, opts ...ServerOption) *Server {
	s := &Server{
		resolver: resolver,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP routes requests by method and path.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	switch {
	case path == "healthz":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleHealth(w, r)
	case path == "v1/incidents:resolve":
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		s.handleResolve(w, r)
	case path == "v1/experiences":
		switch r.Method {
		case http.MethodGet:
			s.handleListExperiences(w, r)
		case http.MethodDelete:
			s.handleClearExperiences(w, r)
		default:
			http.NotFound(w, r)
		}
	case path == "v1/stats":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleStats(w, r)
	case path == "v1/timeline":
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		s.handleTimeline(w, r)
	default:
		http.NotFound(w, r)
	}
}

// resolveRequest is the POST /v1/incidents:resolve body.
type resolveRequest struct {
	Description string            `json:"description"`
	System      string            `json:"system,omitempty"`
	Severity    string            `json:"severity,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// resolveResponse augments the pipeline result with review guidance.
type resolveResponse struct {
	*pipeline.Result
	NeedsHumanReview bool `json:"needs_human_review"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		s.writeError(w, errors.New(errors.CodeInvalidInput, "description is required", nil))
		return
	}

	inc := incident.NewIncident(req.Description)
	inc.System = req.System
	inc.Severity = req.Severity
	inc.Metadata = req.Metadata

	started := time.Now()
	result, err := s.resolver.Resolve(r.Context(), inc)
	if err != nil {
		s.logger.Error("incident resolution failed",
			"incident_id", inc.ID,
			"error", err)
		s.writeError(w, err)
		return
	}

	s.logger.Info("incident resolved",
		"incident_id", inc.ID,
		"outcome", result.Outcome,
		"iterations", result.Iterations,
		"duration", time.Since(started))

	writeJSON(w, http.StatusOK, resolveResponse{
		Result:           result,
		NeedsHumanReview: result.NeedsHumanReview(),
	})
}

func (s *Server) handleListExperiences(w http.ResponseWriter, r *http.Request) {
	query := memory.Query{
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, errors.New(errors.CodeInvalidInput, "limit must be a positive integer", nil))
			return
		}
		query.TopK = limit
	}

	experiences, err := s.store.Retrieve(r.Context(), query)
	if err != nil {
		s.writeError(w, errors.New(errors.CodeMemoryError, "experience retrieval failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiences": experiences,
		"count":       len(experiences),
	})
}

func (s *Server) handleClearExperiences(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, errors.New(errors.CodeMemoryError, "experience clear failed", err))
		return
	}
	s.logger.Info("experience memory cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, errors.New(errors.CodeMemoryError, "experience stats failed", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.store.Timeline(r.Context())
	if err != nil {
		s.writeError(w, errors.New(errors.CodeMemoryError, "experience timeline failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeline": timeline,
		"count":    len(timeline),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	results, overall := s.health.CheckAll(r.Context())
	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":     overall,
		"components": results,
	})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid body", err)
	}
	if len(body) == 0 {
		return errors.New(errors.CodeInvalidInput, "empty body", nil)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New(errors.CodeInvalidInput, "malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders a MendError as problem+json with its status code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	me := errors.AsMendError(err)
	status := me.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := map[string]interface{}{
		"type":   "about:blank",
		"title":  string(me.Code),
		"detail": me.Message,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
