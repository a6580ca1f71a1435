// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forgeci/buildmetad/internal/buildmeta"
	"github.com/forgeci/buildmetad/internal/log"
	"github.com/forgeci/buildmetad/internal/types"
)

// maxBodyBytes bounds request bodies: the config options cap plus room
// for the rest of the envelope.
const maxBodyBytes = buildmeta.MaxConfigOptionsBytes + 4096

type metadataRequest struct {
	ProjectID         string          `json:"project_id"`
	RunnerID          string          `json:"runner_id,omitempty"`
	JobTimeoutSeconds int64           `json:"job_timeout_seconds,omitempty"`
	Interruptible     bool            `json:"interruptible"`
	DebugTraceEnabled bool            `json:"debug_trace_enabled"`
	CancelGracefully  bool            `json:"cancel_gracefully"`
	ConfigOptions     json.RawMessage `json:"config_options,omitempty"`
}

type metadataResponse struct {
	BuildID           string              `json:"build_id"`
	ProjectID         string              `json:"project_id"`
	RunnerID          string              `json:"runner_id,omitempty"`
	TimeoutSeconds    int64               `json:"timeout_seconds,omitempty"`
	TimeoutSource     types.TimeoutSource `json:"timeout_source"`
	JobTimeoutSeconds int64               `json:"job_timeout_seconds,omitempty"`
	Status            types.BuildStatus   `json:"status"`
	Interruptible     bool                `json:"interruptible"`
	DebugTraceEnabled bool                `json:"debug_trace_enabled"`
	CancelGracefully  bool                `json:"cancel_gracefully"`
	ExitCode          *int                `json:"exit_code,omitempty"`
	ConfigOptions     json.RawMessage     `json:"config_options,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func toResponse(m *buildmeta.Metadata) metadataResponse {
	return metadataResponse{
		BuildID:           m.BuildID,
		ProjectID:         m.ProjectID,
		RunnerID:          m.RunnerID,
		TimeoutSeconds:    int64(m.Timeout / time.Second),
		TimeoutSource:     m.TimeoutSource,
		JobTimeoutSeconds: int64(m.JobTimeout / time.Second),
		Status:            m.Status,
		Interruptible:     m.Interruptible,
		DebugTraceEnabled: m.DebugTraceEnabled,
		CancelGracefully:  m.CancelGracefully,
		ExitCode:          m.ExitCode,
		ConfigOptions:     m.ConfigOptions,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (s *Server) handleUpsertMetadata(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	ctx := log.ContextWithBuildID(r.Context(), buildID)
	logger := log.WithComponentFromContext(ctx, "api")

	var req metadataRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, bodyErrorMessage(err))
		return
	}

	meta := &buildmeta.Metadata{
		BuildID:           buildID,
		ProjectID:         req.ProjectID,
		RunnerID:          req.RunnerID,
		JobTimeout:        time.Duration(req.JobTimeoutSeconds) * time.Second,
		Interruptible:     req.Interruptible,
		DebugTraceEnabled: req.DebugTraceEnabled,
		CancelGracefully:  req.CancelGracefully,
		ConfigOptions:     req.ConfigOptions,
	}

	if err := s.store.UpsertMetadata(ctx, meta); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	stored, err := s.store.GetMetadata(ctx, buildID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	logger.Info().
		Str(log.FieldEvent, "metadata.upserted").
		Str(log.FieldProjectID, req.ProjectID).
		Msg("build metadata stored")
	writeJSON(w, http.StatusOK, toResponse(stored))
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	meta, err := s.store.GetMetadata(r.Context(), buildID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(meta))
}

type resolveRequest struct {
	RunnerID string `json:"runner_id,omitempty"`
}

type resolveResponse struct {
	BuildID        string              `json:"build_id"`
	TimeoutSeconds int64               `json:"timeout_seconds"`
	Source         types.TimeoutSource `json:"source"`
}

func (s *Server) handleResolveTimeout(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	ctx := log.ContextWithBuildID(r.Context(), buildID)

	// The body is optional; the coordinator sends runner_id once the
	// build has been assigned.
	var req resolveRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, ok, err := s.service.ResolveTimeout(ctx, buildID, req.RunnerID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		BuildID:        buildID,
		TimeoutSeconds: int64(res.Value / time.Second),
		Source:         res.Source,
	})
}

type historyEntry struct {
	TimeoutSeconds int64               `json:"timeout_seconds"`
	Source         types.TimeoutSource `json:"source"`
	ResolvedAt     time.Time           `json:"resolved_at"`
}

func (s *Server) handleTimeoutHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusNotFound, "resolution history not enabled")
		return
	}
	buildID := chi.URLParam(r, "buildID")

	entries, err := s.history.History(r.Context(), buildID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read history")
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			TimeoutSeconds: int64(e.Value / time.Second),
			Source:         e.Source,
			ResolvedAt:     e.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build_id": buildID,
		"entries":  out,
	})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	metas, err := s.store.ListByProject(r.Context(), projectID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	builds := make([]metadataResponse, 0, len(metas))
	for _, m := range metas {
		builds = append(builds, toResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"builds":     builds,
		"count":      len(builds),
	})
}

type statusRequest struct {
	Status   string `json:"status"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	ctx := log.ContextWithBuildID(r.Context(), buildID)
	logger := log.WithComponentFromContext(ctx, "api")

	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, bodyErrorMessage(err))
		return
	}

	target, err := types.ParseBuildStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SetStatus(ctx, buildID, target); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	if req.ExitCode != nil && target.IsTerminal() {
		if err := s.store.SetExitCode(ctx, buildID, *req.ExitCode); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	logger.Info().
		Str(log.FieldEvent, "status.updated").
		Str(log.FieldNewStatus, target.String()).
		Msg("build status updated")

	meta, err := s.store.GetMetadata(ctx, buildID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(meta))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	} else {
		checks["store"] = "ok"
	}

	for _, rc := range s.readiness {
		if err := rc.Check(ctx); err != nil {
			checks[rc.Name] = err.Error()
			healthy = false
		} else {
			checks[rc.Name] = "ok"
		}
	}

	code := http.StatusOK
	status := "ready"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "unavailable"
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"checks":         checks,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// decodeBody decodes a JSON request body, rejecting unknown fields and
// oversized payloads. io.EOF is returned unchanged so callers can treat
// an empty body as optional.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func bodyErrorMessage(err error) string {
	if errors.Is(err, io.EOF) {
		return "empty request body"
	}
	return err.Error()
}

// writeStoreError maps domain errors onto HTTP status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, buildmeta.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "build not found")
	case errors.Is(err, buildmeta.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, buildmeta.ErrPayloadTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, buildmeta.ErrInvalidMetadata):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "api.internal_error").Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
