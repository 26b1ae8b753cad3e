package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/ingest"
)

// GroupsHandler handles group lifecycle endpoints.
type GroupsHandler struct {
	orch *ingest.Orchestrator
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(orch *ingest.Orchestrator) *GroupsHandler {
	return &GroupsHandler{orch: orch}
}

// Delete removes a group with every person, face and metadata it contains.
func (h *GroupsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if err := h.orch.DeleteGroup(r.Context(), groupID); err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"deleted":  true,
	})
}
