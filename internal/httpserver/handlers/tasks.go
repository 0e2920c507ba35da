package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/domain/publish/domain"
	lperrors "github.com/relicta-tech/launchpad/internal/errors"
	"github.com/relicta-tech/launchpad/internal/httpserver/dto"
)

// BuildCallback applies a builder completion report and notifies the caller
// system. A failed notification answers 502 even when the task was updated.
func (h *Handlers) BuildCallback(w http.ResponseWriter, r *http.Request) {
	var req dto.CallbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.lifecycle.Complete(r.Context(), app.CallbackInput{
		TaskID:         domain.TaskID(req.Number),
		ExternalTaskID: req.TaskID,
		BuildID:        req.BuildID,
		Result:         req.Result,
		HookStep:       req.HookStep,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.CallbackResponse{
		Applied:      out.Applied,
		Status:       string(out.Status),
		Notification: out.Notification,
	})
}

// UpdateStatus applies a numeric status update without notifying anyone.
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	var req dto.LegacyStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	applied, err := h.lifecycle.ApplyLegacyStatus(r.Context(), id, req.Status, req.BuildID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.StatusResponse{Applied: applied})
}

// TaskDetail returns a task and its builder job.
func (h *Handlers) TaskDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	detail, err := h.query.Detail(r.Context(), id)
	if err != nil {
		respondFailure(w, err)
		return
	}
	task := dto.NewTaskDTO(detail.Task)
	task.Job = detail.Job
	respondJSON(w, http.StatusOK, task)
}

// ExternalTaskExtra summarizes the task issued under an external id. Module
// assets are included with ?modules=true.
func (h *Handlers) ExternalTaskExtra(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	withModules, _ := strconv.ParseBool(r.URL.Query().Get("modules"))

	extra, err := h.query.ExtraByExternalID(r.Context(), externalID, withModules)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, extra)
}

// RecordArtifact stores the document the builder deployed for a task.
func (h *Handlers) RecordArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArtifactBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "artifact too large", lperrors.KindValidation.String(), nil)
		return
	}

	h2, err := h.artifacts.RecordArtifact(r.Context(), id, body)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewHistoryDTO(h2))
}
