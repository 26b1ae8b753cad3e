package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/ingest"
)

// MergeHandler handles identity consolidation endpoints.
type MergeHandler struct {
	orch *ingest.Orchestrator
}

// NewMergeHandler creates a new merge handler.
func NewMergeHandler(orch *ingest.Orchestrator) *MergeHandler {
	return &MergeHandler{orch: orch}
}

type mergeRequest struct {
	SourcePersonIDs []string `json:"source_person_ids"`
	TargetPersonID  string   `json:"target_person_id"`
}

// Merge consolidates source persons into the target person.
func (h *MergeHandler) Merge(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.orch.Merge(r.Context(), groupID, req.SourcePersonIDs, req.TargetPersonID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	log.Printf("Merged %d persons into %s in group %s (%d faces moved)",
		len(result.MergedSources), sanitizeForLog(result.TargetPersonID), sanitizeForLog(groupID), result.TotalFacesMoved)
	respondJSON(w, http.StatusOK, result)
}
