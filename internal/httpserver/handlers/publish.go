package handlers

import (
	"net/http"

	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/httpserver/dto"
)

// PreCheck reports whether a workflow publish would be accepted.
func (h *Handlers) PreCheck(w http.ResponseWriter, r *http.Request) {
	var in app.PublishInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.User = operator(r)

	out, err := h.publisher.PreCheck(r.Context(), in)
	if err != nil {
		respondFailure(w, err)
		return
	}
	advisories := out.Advisories
	if advisories == nil {
		advisories = []string{}
	}
	respondJSON(w, http.StatusOK, dto.PreCheckResponse{OK: true, Advisories: advisories})
}

// Publish runs a workflow publish.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	var in app.PublishInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.User = operator(r)

	out, err := h.publisher.Publish(r.Context(), in)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.PublishResponse{
		Task:       dto.NewTaskDTO(out.Task),
		QueueID:    out.QueueID,
		Advisories: out.Advisories,
	})
}

// PublishExternal runs a publish issued by the caller system.
func (h *Handlers) PublishExternal(w http.ResponseWriter, r *http.Request) {
	var in app.ExternalPublishInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.User = operator(r)

	out, err := h.publisher.PublishExternal(r.Context(), in)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.PublishResponse{
		Task:    dto.NewTaskDTO(out.Task),
		QueueID: out.QueueID,
	})
}
