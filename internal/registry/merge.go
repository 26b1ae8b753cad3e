package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-registry/internal/corpus"
)

// MergedSource describes what one source contributed to a merge.
type MergedSource struct {
	PersonID    string `json:"person_id"`
	FacesMoved  int    `json:"faces_moved"`
	WasTempUser bool   `json:"was_temp_user"`
}

// MergeResult is the outcome of a merge operation.
type MergeResult struct {
	TargetPersonID  string         `json:"target_person_id"`
	MergedSources   []MergedSource `json:"merged_sources"`
	TotalFacesMoved int            `json:"total_faces_moved"`
	TargetExisted   bool           `json:"target_existed"`
}

// Merge consolidates the source persons into the target person: every face
// owned by a source is relocated to the target (original timestamps intact),
// source metadata is folded additively into the target's, and the emptied
// sources are removed. The whole operation holds the group's exclusive lock.
//
// All sources are validated before the first mutation, so a bad request has
// zero partial effect. A failure after validation may leave some sources
// merged and others not; callers retry with the remaining ids. Re-merging
// already-merged sources fails with ErrNotFound because those sources no
// longer exist.
func (r *Registry) Merge(ctx context.Context, group string, sourceIDs []string, targetID string) (MergeResult, error) {
	if len(sourceIDs) == 0 {
		return MergeResult{}, fmt.Errorf("%w: source person ids must be a non-empty list", corpus.ErrInvalidArgument)
	}
	if targetID == "" {
		return MergeResult{}, fmt.Errorf("%w: target person id is required", corpus.ErrInvalidArgument)
	}

	sources := dedupe(sourceIDs)
	for _, src := range sources {
		if src == targetID {
			return MergeResult{}, fmt.Errorf("%w: cannot merge person %q into itself", corpus.ErrInvalidArgument, src)
		}
	}

	lock := r.locks.Get(group)
	lock.Lock()
	defer lock.Unlock()

	// Validate every source before touching anything.
	for _, src := range sources {
		exists, err := r.personExists(ctx, group, src)
		if err != nil {
			return MergeResult{}, err
		}
		if !exists {
			return MergeResult{}, fmt.Errorf("%w: source person %q in group %q", corpus.ErrNotFound, src, group)
		}
	}

	targetMeta, err := r.store.Get(ctx, group, targetID)
	targetExisted := err == nil
	if err != nil {
		if !errors.Is(err, corpus.ErrNotFound) {
			return MergeResult{}, err
		}
		// Target without metadata: merged identities are permanent.
		targetMeta = corpus.PersonMetadata{
			PersonID:         targetID,
			RecognitionType:  TypeRecognized,
			IsTempUser:       false,
			CreatedFromMerge: true,
		}
		// Written before any face moves so the target never owns faces
		// without a metadata record, even if the merge dies midway.
		if err := r.store.Put(ctx, group, targetID, targetMeta); err != nil {
			return MergeResult{}, fmt.Errorf("writing target metadata: %w", err)
		}
	}

	result := MergeResult{
		TargetPersonID: targetID,
		TargetExisted:  targetExisted,
	}

	for _, src := range sources {
		srcMeta, metaErr := r.store.Get(ctx, group, src)
		if metaErr != nil && !errors.Is(metaErr, corpus.ErrNotFound) {
			return result, metaErr
		}

		moved, err := r.store.MoveFaces(ctx, group, src, targetID)
		if err != nil {
			return result, fmt.Errorf("moving faces of source %q (merged so far: %d sources, %d faces): %w",
				src, len(result.MergedSources), result.TotalFacesMoved, err)
		}

		if metaErr == nil {
			foldMetadata(&targetMeta, srcMeta)
		}

		// Persist the fold before the source record is deleted; a failure on
		// a later source must not lose fields that now exist nowhere else.
		if err := r.store.Put(ctx, group, targetID, targetMeta); err != nil {
			return result, fmt.Errorf("writing target metadata after folding source %q: %w", src, err)
		}

		if err := r.store.Delete(ctx, group, src); err != nil {
			return result, fmt.Errorf("deleting metadata of source %q: %w", src, err)
		}

		// A source owning faces after its move indicates a storage defect.
		// That must surface loudly: silently leaving them would orphan data.
		remaining, err := r.store.CountFaces(ctx, group, src)
		if err != nil {
			return result, err
		}
		if remaining != 0 {
			return result, fmt.Errorf("%w: source %q still owns %d faces after merge", corpus.ErrConsistency, src, remaining)
		}
		if err := r.store.DeletePersonIfEmpty(ctx, group, src); err != nil {
			return result, err
		}

		result.MergedSources = append(result.MergedSources, MergedSource{
			PersonID:    src,
			FacesMoved:  moved,
			WasTempUser: srcMeta.IsTempUser,
		})
		result.TotalFacesMoved += moved
	}

	targetMeta.MergeHistory = append(targetMeta.MergeHistory, corpus.MergeEvent{
		MergedAt:   time.Now(),
		Sources:    sources,
		FacesAdded: result.TotalFacesMoved,
	})
	if err := r.store.Put(ctx, group, targetID, targetMeta); err != nil {
		return result, fmt.Errorf("writing merged target metadata: %w", err)
	}

	return result, nil
}

// foldMetadata merges a source's metadata into the target additively:
// target-owned fields win, absent target fields are filled from the source.
// LastUpdated is latest-wins (refreshed by the final Put).
func foldMetadata(target *corpus.PersonMetadata, source corpus.PersonMetadata) {
	if target.RecognitionType == "" {
		target.RecognitionType = source.RecognitionType
	}
	if target.Confidence == 0 {
		target.Confidence = source.Confidence
	}
	if target.SourceImage == "" {
		target.SourceImage = source.SourceImage
	}
	for key, value := range source.Attrs {
		if target.Attrs == nil {
			target.Attrs = make(map[string]string)
		}
		if _, taken := target.Attrs[key]; !taken {
			target.Attrs[key] = value
		}
	}
	target.MergeHistory = append(target.MergeHistory, source.MergeHistory...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
