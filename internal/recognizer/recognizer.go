// Package recognizer talks to the external face detection/embedding/matching
// collaborator. The registry core never sees images beyond opaque bytes; the
// mathematics of detection and matching live entirely behind this boundary.
package recognizer

import "context"

// Options configures a single recognition call. The original service kept a
// process-wide "performance mode"; here the knobs travel with the call so
// behavior stays deterministic and testable per request. Presets for the
// classic modes are loaded by the config package.
type Options struct {
	DetectorBackend   string  `yaml:"detector_backend" json:"detector_backend"`
	RecognitionModel  string  `yaml:"recognition_model" json:"recognition_model"`
	DistanceMetric    string  `yaml:"distance_metric" json:"distance_metric"`
	Threshold         float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	MaxImageDimension int     `yaml:"max_image_dimension" json:"max_image_dimension"`
}

// Detection is one detected face region with its recognition result.
type Detection struct {
	// Box holds [x1, y1, x2, y2] in pixel coordinates of the analyzed image.
	Box []float64 `json:"bbox"`

	// Embedding is the face embedding vector, empty when extraction failed.
	Embedding []float32 `json:"embedding,omitempty"`

	// Crop holds the cropped face image when the collaborator returns one.
	// When empty, callers store the full analyzed image instead.
	Crop []byte `json:"-"`

	// CandidatePersonID names the best-matching known person, empty when the
	// collaborator proposes no candidate.
	CandidatePersonID string `json:"candidate_person_id,omitempty"`

	// Confidence is the match score for the candidate (0 when none).
	Confidence float64 `json:"confidence"`

	// Err carries a per-face detection/embedding failure. A face with Err
	// set produces an "unknown" ingestion outcome and no identity.
	Err string `json:"error,omitempty"`
}

// Recognizer detects faces in an image and optionally matches each one
// against the group's known persons. Failure of the whole call is reported
// as an error and must not corrupt stored state; per-face failures travel
// in Detection.Err.
type Recognizer interface {
	DetectAndMatch(ctx context.Context, group string, image []byte, opts Options) ([]Detection, error)
}
