package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/ingest"
)

// IngestHandler handles face ingestion endpoints.
type IngestHandler struct {
	config *config.Config
	orch   *ingest.Orchestrator
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(cfg *config.Config, orch *ingest.Orchestrator) *IngestHandler {
	return &IngestHandler{
		config: cfg,
		orch:   orch,
	}
}

type ingestJSONRequest struct {
	ImageBase64 string `json:"image_base64"`
	SourceName  string `json:"source_name,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// Ingest handles an image upload, as a multipart form or a JSON body with a
// base64 image: detects faces, resolves their identities and stores them in
// the group's corpus.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var image []byte
	var sourceName, mode string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req ingestJSONRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, constants.MaxUploadSize)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil || len(decoded) == 0 {
			respondError(w, http.StatusBadRequest, "image_base64 must be a non-empty base64 string")
			return
		}
		image = decoded
		sourceName = req.SourceName
		mode = req.Mode
	} else {
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			respondError(w, http.StatusBadRequest, "failed to parse multipart form")
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			respondError(w, http.StatusBadRequest, "image file is required")
			return
		}
		defer file.Close()

		image, err = io.ReadAll(file)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read uploaded file")
			return
		}
		sourceName = header.Filename
		mode = r.FormValue("mode")
	}

	if mode == "" {
		mode = h.config.Recognizer.Mode
	}
	opts := h.config.Options(mode)

	result, err := h.orch.Ingest(r.Context(), groupID, image, sourceName, opts)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
