package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/ingest"
	"github.com/kozaktomas/face-registry/internal/recognizer"
)

func TestIngest_NewPerson(t *testing.T) {
	reg := testRegistry(t)
	rec := &stubRecognizer{
		detections: []recognizer.Detection{
			{Box: []float64{10, 10, 50, 50}, Embedding: []float32{0.1, 0.2}},
		},
	}
	handler := NewIngestHandler(testConfig(), ingest.New(reg, rec))

	req := multipartImageRequest(t, "/groups/wedding/faces", []byte("fake-image"), nil)
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ingest.Result
	parseJSONResponse(t, recorder, &result)

	if result.FacesFound != 1 {
		t.Fatalf("expected 1 face found, got %d", result.FacesFound)
	}
	face := result.Faces[0]
	if !face.IsNewPerson || !face.IsTempUser {
		t.Errorf("expected new temporary person, got %+v", face)
	}
	if face.PersonID == "" {
		t.Error("expected minted person id")
	}
	if face.RecognitionType != "temp_user" {
		t.Errorf("expected recognition type 'temp_user', got '%s'", face.RecognitionType)
	}

	count, err := reg.Store().CountFaces(context.Background(), "wedding", face.PersonID)
	if err != nil {
		t.Fatalf("failed to count faces: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored face, got %d", count)
	}
}

func TestIngest_MatchedPerson(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()
	if err := reg.RegisterPermanentIdentity(ctx, "wedding", "alice"); err != nil {
		t.Fatalf("failed to register identity: %v", err)
	}
	storeTestFace(t, reg, "wedding", "alice")

	rec := &stubRecognizer{
		detections: []recognizer.Detection{
			{CandidatePersonID: "alice", Confidence: 0.9},
		},
	}
	handler := NewIngestHandler(testConfig(), ingest.New(reg, rec))

	req := multipartImageRequest(t, "/groups/wedding/faces", []byte("fake-image"), nil)
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ingest.Result
	parseJSONResponse(t, recorder, &result)

	face := result.Faces[0]
	if face.PersonID != "alice" {
		t.Errorf("expected match to 'alice', got '%s'", face.PersonID)
	}
	if face.IsNewPerson {
		t.Error("expected existing person, got new")
	}
	if face.RecognitionType != "recognized" {
		t.Errorf("expected recognition type 'recognized', got '%s'", face.RecognitionType)
	}
}

func TestIngest_JSONBody(t *testing.T) {
	reg := testRegistry(t)
	rec := &stubRecognizer{
		detections: []recognizer.Detection{
			{Embedding: []float32{0.1, 0.2}},
		},
	}
	handler := NewIngestHandler(testConfig(), ingest.New(reg, rec))

	body := `{"image_base64": "` + base64.StdEncoding.EncodeToString([]byte("fake-image")) + `", "source_name": "party.jpg"}`
	req := httptest.NewRequest(http.MethodPost, "/groups/wedding/faces", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ingest.Result
	parseJSONResponse(t, recorder, &result)
	if result.FacesFound != 1 {
		t.Fatalf("expected 1 face found, got %d", result.FacesFound)
	}

	meta, err := reg.Store().Get(context.Background(), "wedding", result.Faces[0].PersonID)
	if err != nil {
		t.Fatalf("failed to read metadata: %v", err)
	}
	if meta.SourceImage != "party.jpg" {
		t.Errorf("expected source name recorded, got '%s'", meta.SourceImage)
	}
}

func TestIngest_JSONBodyInvalidBase64(t *testing.T) {
	handler := NewIngestHandler(testConfig(), ingest.New(testRegistry(t), &stubRecognizer{}))

	req := httptest.NewRequest(http.MethodPost, "/groups/wedding/faces", strings.NewReader(`{"image_base64": "%%%"}`))
	req.Header.Set("Content-Type", "application/json")
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestIngest_NoFaces(t *testing.T) {
	handler := NewIngestHandler(testConfig(), ingest.New(testRegistry(t), &stubRecognizer{}))

	req := multipartImageRequest(t, "/groups/wedding/faces", []byte("fake-image"), nil)
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestIngest_MissingFile(t *testing.T) {
	handler := NewIngestHandler(testConfig(), ingest.New(testRegistry(t), &stubRecognizer{}))

	req := httptest.NewRequest(http.MethodPost, "/groups/wedding/faces", nil)
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestIngest_PerFaceError(t *testing.T) {
	rec := &stubRecognizer{
		detections: []recognizer.Detection{
			{Err: "embedding extraction failed"},
			{Embedding: []float32{0.3, 0.4}},
		},
	}
	handler := NewIngestHandler(testConfig(), ingest.New(testRegistry(t), rec))

	req := multipartImageRequest(t, "/groups/wedding/faces", []byte("fake-image"), nil)
	req = requestWithChiParams(req, map[string]string{"groupID": "wedding"})
	recorder := httptest.NewRecorder()
	handler.Ingest(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result ingest.Result
	parseJSONResponse(t, recorder, &result)

	if len(result.Faces) != 2 {
		t.Fatalf("expected 2 face outcomes, got %d", len(result.Faces))
	}
	if result.Faces[0].Error == "" || result.Faces[0].PersonID != "" {
		t.Errorf("expected failed face without identity, got %+v", result.Faces[0])
	}
	if result.Faces[0].RecognitionType != "unknown" {
		t.Errorf("expected recognition type 'unknown', got '%s'", result.Faces[0].RecognitionType)
	}
	if result.Faces[1].PersonID == "" {
		t.Error("expected second face to receive an identity")
	}
}
