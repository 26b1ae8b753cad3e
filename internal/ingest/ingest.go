// Package ingest orchestrates the face ingestion pipeline: analyze an
// uploaded image, resolve an identity for every detected face and persist
// the results. Detection runs outside the group lock; only the write phase
// (storing faces and metadata) serializes against merges.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/corpus"
	"github.com/kozaktomas/face-registry/internal/imaging"
	"github.com/kozaktomas/face-registry/internal/index"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// Outcome is the per-face result of one ingestion.
type Outcome struct {
	FaceIndex       int     `json:"face_index"`
	PersonID        string  `json:"person_id,omitempty"`
	IsTempUser      bool    `json:"is_temp_user"`
	IsNewPerson     bool    `json:"is_new_person"`
	RecognitionType string  `json:"recognition_type"`
	Confidence      float64 `json:"confidence"`
	StoredAs        string  `json:"saved_to,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Result summarizes one ingested image.
type Result struct {
	GroupID    string    `json:"group_id"`
	FacesFound int       `json:"faces_found"`
	Faces      []Outcome `json:"faces"`
}

// indexFeeder is implemented by recognizers that keep a local vector index
// which needs every stored face fed back in.
type indexFeeder interface {
	Index() *index.Index
}

// embeddingAttacher is implemented by corpus backends that can persist the
// embedding next to the stored face (the PostgreSQL backend).
type embeddingAttacher interface {
	AttachEmbedding(ctx context.Context, group, person, entryID string, embedding []float32) error
}

// Orchestrator drives the ingestion pipeline.
type Orchestrator struct {
	reg *registry.Registry
	rec recognizer.Recognizer
}

// New creates an ingestion orchestrator.
func New(reg *registry.Registry, rec recognizer.Recognizer) *Orchestrator {
	return &Orchestrator{reg: reg, rec: rec}
}

// Ingest analyzes the image, resolves an identity per detected face and
// stores each face under its person. sourceName is recorded in the person
// metadata for traceability (typically the uploaded filename).
//
// An image in which no face is detected is rejected with ErrInvalidArgument
// and nothing is stored. A per-face detection failure does not abort the
// other faces; it yields an "unknown" outcome without an identity.
func (o *Orchestrator) Ingest(ctx context.Context, group string, image []byte, sourceName string, opts recognizer.Options) (Result, error) {
	if group == "" {
		return Result{}, fmt.Errorf("%w: group id is required", corpus.ErrInvalidArgument)
	}
	if len(image) == 0 {
		return Result{}, fmt.Errorf("%w: empty image", corpus.ErrInvalidArgument)
	}

	analyzed, _, err := imaging.DownscaleIfNeeded(image, opts.MaxImageDimension)
	if err != nil {
		return Result{}, fmt.Errorf("preparing image: %w", err)
	}

	detections, err := o.rec.DetectAndMatch(ctx, group, analyzed, opts)
	if err != nil {
		return Result{}, fmt.Errorf("analyzing image: %w", err)
	}
	if len(detections) == 0 {
		return Result{}, fmt.Errorf("%w: no face detected in image", corpus.ErrInvalidArgument)
	}

	lock := o.reg.Locks().Get(group)
	lock.Lock()
	defer lock.Unlock()

	result := Result{
		GroupID:    group,
		FacesFound: len(detections),
		Faces:      make([]Outcome, 0, len(detections)),
	}
	for i, det := range detections {
		outcome, err := o.resolveAndStore(ctx, group, analyzed, sourceName, i, det, opts)
		if err != nil {
			return Result{}, err
		}
		result.Faces = append(result.Faces, outcome)
	}
	return result, nil
}

// Merge consolidates the source persons into the target and rewrites the
// owner of their indexed embeddings so future candidate lookups point at
// the target.
func (o *Orchestrator) Merge(ctx context.Context, group string, sourceIDs []string, targetID string) (registry.MergeResult, error) {
	result, err := o.reg.Merge(ctx, group, sourceIDs, targetID)
	if err != nil {
		return registry.MergeResult{}, err
	}
	if feeder, ok := o.rec.(indexFeeder); ok {
		for _, src := range result.MergedSources {
			feeder.Index().ReassignPerson(group, src.PersonID, result.TargetPersonID)
		}
	}
	return result, nil
}

// DeleteGroup removes the group from the corpus and discards its index.
func (o *Orchestrator) DeleteGroup(ctx context.Context, group string) error {
	if err := o.reg.DeleteGroup(ctx, group); err != nil {
		return err
	}
	if feeder, ok := o.rec.(indexFeeder); ok {
		feeder.Index().DropGroup(group)
	}
	return nil
}

// resolveAndStore handles a single detection under the group lock.
func (o *Orchestrator) resolveAndStore(ctx context.Context, group string, image []byte, sourceName string, faceIndex int, det recognizer.Detection, opts recognizer.Options) (Outcome, error) {
	if det.Err != "" {
		return Outcome{
			FaceIndex:       faceIndex,
			RecognitionType: registry.TypeUnknown,
			Error:           det.Err,
		}, nil
	}

	outcome := Outcome{FaceIndex: faceIndex}

	matched := det.CandidatePersonID != "" && det.Confidence >= opts.Threshold
	if matched {
		outcome.PersonID = det.CandidatePersonID
		outcome.Confidence = det.Confidence
		outcome.RecognitionType = registry.TypeRecognized

		temp, err := o.reg.IsTemporary(ctx, group, det.CandidatePersonID)
		if err != nil && !errors.Is(err, corpus.ErrNotFound) {
			return Outcome{}, fmt.Errorf("classifying person %q: %w", det.CandidatePersonID, err)
		}
		// A match against a face whose identity is still provisional keeps
		// the temporary classification visible to the caller.
		if err == nil && temp {
			outcome.IsTempUser = true
			outcome.RecognitionType = registry.TypeTempUser
		}
	} else {
		personID, err := o.reg.MintTemporaryIdentity(ctx, group)
		if err != nil {
			return Outcome{}, fmt.Errorf("minting identity for face %d: %w", faceIndex, err)
		}
		outcome.PersonID = personID
		outcome.IsTempUser = true
		outcome.IsNewPerson = true
		outcome.RecognitionType = registry.TypeTempUser
		outcome.Confidence = det.Confidence
	}

	stored := det.Crop
	if len(stored) == 0 {
		stored = image
	}
	entry, err := o.reg.Store().StoreFace(ctx, group, outcome.PersonID, stored)
	if err != nil {
		return Outcome{}, fmt.Errorf("storing face for person %q: %w", outcome.PersonID, err)
	}
	outcome.StoredAs = entry.EntryID

	if attacher, ok := o.reg.Store().(embeddingAttacher); ok && len(det.Embedding) > 0 {
		if err := attacher.AttachEmbedding(ctx, group, outcome.PersonID, entry.EntryID, det.Embedding); err != nil {
			return Outcome{}, fmt.Errorf("storing embedding for face %q: %w", entry.EntryID, err)
		}
	}

	if err := o.updateMetadata(ctx, group, sourceName, outcome); err != nil {
		return Outcome{}, err
	}

	if feeder, ok := o.rec.(indexFeeder); ok && len(det.Embedding) > 0 {
		feeder.Index().Add(group, index.FaceRef{
			PersonID: outcome.PersonID,
			EntryID:  entry.EntryID,
		}, det.Embedding)
	}
	return outcome, nil
}

// updateMetadata refreshes the person record after a face was stored.
func (o *Orchestrator) updateMetadata(ctx context.Context, group, sourceName string, outcome Outcome) error {
	meta, err := o.reg.Store().Get(ctx, group, outcome.PersonID)
	if err != nil && !errors.Is(err, corpus.ErrNotFound) {
		return fmt.Errorf("loading metadata for person %q: %w", outcome.PersonID, err)
	}

	meta.PersonID = outcome.PersonID
	meta.RecognitionType = outcome.RecognitionType
	meta.IsTempUser = outcome.IsTempUser
	meta.Confidence = outcome.Confidence
	if sourceName != "" {
		meta.SourceImage = sourceName
	}

	if err := o.reg.Store().Put(ctx, group, outcome.PersonID, meta); err != nil {
		return fmt.Errorf("writing metadata for person %q: %w", outcome.PersonID, err)
	}
	return nil
}
