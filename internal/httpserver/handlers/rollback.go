package handlers

import (
	"net/http"

	"github.com/relicta-tech/launchpad/internal/domain/publish/app"
	"github.com/relicta-tech/launchpad/internal/httpserver/dto"
)

// Rollback restores a recorded production artifact.
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	var in app.RollbackInput
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.rollback.Rollback(r.Context(), in)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.RollbackResponse{
		History: dto.NewHistoryDTO(out.History),
		Target:  out.Coordinates,
		Bytes:   out.Bytes,
	})
}

// RollbackDiff returns the history rows of the live and the rollback version.
func (h *Handlers) RollbackDiff(w http.ResponseWriter, r *http.Request) {
	var in app.DiffInput
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.rollback.Diff(r.Context(), in)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.DiffResponse{
		Online:   dto.NewHistoryDTO(out.Online),
		Rollback: dto.NewHistoryDTO(out.Rollback),
	})
}
