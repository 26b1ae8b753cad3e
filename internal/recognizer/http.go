package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const defaultRecognizerURL = "http://localhost:8000"

// Client calls the recognizer service over HTTP. The service exposes a
// multipart endpoint that detects faces and, when a group is supplied,
// matches each face against that group's enrolled persons.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a recognizer client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultRecognizerURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// detectResponse is the recognizer service wire format.
type detectResponse struct {
	FacesCount int          `json:"faces_count"`
	Faces      []detectFace `json:"faces"`
	Model      string       `json:"model"`
}

type detectFace struct {
	FaceIndex         int       `json:"face_index"`
	BBox              []float64 `json:"bbox"`
	DetScore          float64   `json:"det_score"`
	Embedding         []float32 `json:"embedding"`
	CropBase64        string    `json:"crop_base64,omitempty"`
	CandidatePersonID string    `json:"candidate_person_id,omitempty"`
	Confidence        float64   `json:"confidence"`
	Error             string    `json:"error,omitempty"`
}

// DetectAndMatch posts the image to the recognizer service and converts the
// response into detections.
func (c *Client) DetectAndMatch(ctx context.Context, group string, image []byte, opts Options) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/detect", group, image, opts)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		det := Detection{
			Box:               face.BBox,
			Embedding:         face.Embedding,
			CandidatePersonID: face.CandidatePersonID,
			Confidence:        face.Confidence,
			Err:               face.Error,
		}
		if face.CropBase64 != "" {
			crop, err := base64.StdEncoding.DecodeString(face.CropBase64)
			if err != nil {
				det.Err = fmt.Sprintf("invalid face crop: %v", err)
			} else {
				det.Crop = crop
			}
		}
		detections = append(detections, det)
	}
	return detections, nil
}

// postMultipartImage constructs a multipart form with the image plus the
// recognition options as form fields and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint, group string, image []byte, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	fields := map[string]string{
		"group_id":         group,
		"detector_backend": opts.DetectorBackend,
		"model":            opts.RecognitionModel,
		"distance_metric":  opts.DistanceMetric,
		"threshold":        strconv.FormatFloat(opts.Threshold, 'f', -1, 64),
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// detectMIMEType detects the MIME type from image magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
