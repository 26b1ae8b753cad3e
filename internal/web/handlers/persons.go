package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/registry"
)

// PersonsHandler handles person listing and registration endpoints.
type PersonsHandler struct {
	reg *registry.Registry
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(reg *registry.Registry) *PersonsHandler {
	return &PersonsHandler{reg: reg}
}

// List returns the group's persons partitioned by classification.
// The optional "name" query parameter filters by the name attribute.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	list, err := h.reg.ListPersons(r.Context(), groupID, registry.ListOptions{
		Name: r.URL.Query().Get("name"),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"group_id":  groupID,
		"permanent": list.Permanent,
		"temporary": list.Temporary,
		"summary":   list.Summary,
	})
}

type registerRequest struct {
	PersonID string `json:"person_id"`
}

// Register pre-registers a caller-assigned permanent identity.
func (h *PersonsHandler) Register(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PersonID == "" {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	if err := h.reg.RegisterPermanentIdentity(r.Context(), groupID, req.PersonID); err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"group_id":  groupID,
		"person_id": req.PersonID,
	})
}
