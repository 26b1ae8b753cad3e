package recognizer

import (
	"context"

	"github.com/kozaktomas/face-registry/internal/index"
)

// searchLimit is how many nearest faces the local matcher retrieves per
// detection; the closest one becomes the candidate.
const searchLimit = 5

// LocalMatcher decorates a detect-only recognizer with candidate matching
// against an in-memory HNSW index of the group's stored face embeddings.
// Useful when the recognizer service only detects and embeds, leaving
// matching to this process.
type LocalMatcher struct {
	detector Recognizer
	idx      *index.Index
}

// NewLocalMatcher wraps a detector with local index matching.
func NewLocalMatcher(detector Recognizer, idx *index.Index) *LocalMatcher {
	return &LocalMatcher{detector: detector, idx: idx}
}

// Index exposes the backing index so ingestion can register newly stored
// faces and merges can reassign owners.
func (m *LocalMatcher) Index() *index.Index {
	return m.idx
}

// DetectAndMatch runs detection, then fills in a candidate for every
// detection the service left unmatched, using the nearest indexed face of
// the group. Confidence is 1 - cosine distance of the best match.
func (m *LocalMatcher) DetectAndMatch(ctx context.Context, group string, image []byte, opts Options) ([]Detection, error) {
	detections, err := m.detector.DetectAndMatch(ctx, group, image, opts)
	if err != nil {
		return nil, err
	}

	for i := range detections {
		det := &detections[i]
		if det.Err != "" || det.CandidatePersonID != "" || len(det.Embedding) == 0 {
			continue
		}

		matches, err := m.idx.Search(group, det.Embedding, searchLimit)
		if err != nil || len(matches) == 0 {
			continue
		}

		best := matches[0]
		for _, match := range matches[1:] {
			if match.Distance < best.Distance {
				best = match
			}
		}
		det.CandidatePersonID = best.Ref.PersonID
		det.Confidence = 1 - best.Distance
	}
	return detections, nil
}
