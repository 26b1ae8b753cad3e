package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/registry"
)

// FacesHandler handles per-person face endpoints.
type FacesHandler struct {
	reg *registry.Registry
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(reg *registry.Registry) *FacesHandler {
	return &FacesHandler{reg: reg}
}

// List enumerates a person's stored faces by creation time.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	personID := chi.URLParam(r, "personID")

	faces, err := h.reg.Store().ListFaces(r.Context(), groupID, personID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"group_id":   groupID,
		"person_id":  personID,
		"face_count": len(faces),
		"faces":      faces,
	})
}

// Latest serves the most recently stored face image of a person.
func (h *FacesHandler) Latest(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	personID := chi.URLParam(r, "personID")

	image, entry, err := h.reg.Store().GetLatestFace(r.Context(), groupID, personID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(image))
	w.Header().Set("X-Entry-ID", entry.EntryID)
	w.WriteHeader(http.StatusOK)
	w.Write(image)
}
