package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/corpus/fs"
	"github.com/kozaktomas/face-registry/internal/ingest"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// testRegistry creates a registry backed by a filesystem store in a temp dir.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	store, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return registry.New(store)
}

// testOrchestrator wraps a registry in an orchestrator without a recognizer,
// for handlers that never run detection.
func testOrchestrator(reg *registry.Registry) *ingest.Orchestrator {
	return ingest.New(reg, nil)
}

// testConfig creates a minimal config for testing.
func testConfig() *config.Config {
	return &config.Config{
		Recognizer: config.RecognizerConfig{Mode: "balanced"},
		Modes: config.ModesConfig{
			Modes: map[string]recognizer.Options{
				"balanced": {
					DetectorBackend:  "mtcnn",
					RecognitionModel: "Facenet512",
					DistanceMetric:   "cosine",
					Threshold:        0.6,
				},
			},
		},
	}
}

// stubRecognizer returns canned detections for every call.
type stubRecognizer struct {
	detections []recognizer.Detection
	err        error
}

func (s *stubRecognizer) DetectAndMatch(ctx context.Context, group string, image []byte, opts recognizer.Options) ([]recognizer.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detections, nil
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartImageRequest builds a multipart request with an image form file.
func multipartImageRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "upload.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
