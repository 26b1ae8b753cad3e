// Package corpus defines the storage contracts for the face registry:
// the face corpus (immutable face images owned by a person within a group)
// and the per-person metadata store. Backends live in subpackages so the
// identity and merge logic stays storage-agnostic.
package corpus

import (
	"context"
	"time"
)

// FaceEntry describes one stored face image without its bytes.
type FaceEntry struct {
	EntryID   string    `json:"entry_id"` // filename-safe, unique under the owning person
	GroupID   string    `json:"group_id"`
	PersonID  string    `json:"person_id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	// Embedding is the face embedding vector, when the backend stores one.
	// The filesystem backend leaves it empty.
	Embedding []float32 `json:"-"`
}

// MergeEvent records one consolidation applied to a person.
type MergeEvent struct {
	MergedAt   time.Time `json:"merged_at"`
	Sources    []string  `json:"merged_sources"`
	FacesAdded int       `json:"total_faces_added"`
}

// PersonMetadata is the structured record stored per (group, person).
type PersonMetadata struct {
	PersonID        string            `json:"person_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	LastUpdated     time.Time         `json:"last_updated"`
	RecognitionType string            `json:"recognition_type,omitempty"` // "recognized", "temp_user" or caller-assigned
	Confidence      float64           `json:"confidence"`
	IsTempUser      bool              `json:"is_temp_user"`
	SourceImage     string            `json:"source_image,omitempty"`
	CreatedFromMerge bool             `json:"created_from_merge,omitempty"`
	MergeHistory    []MergeEvent      `json:"merge_history,omitempty"`
	Attrs           map[string]string `json:"attrs,omitempty"`
}

// FaceStore persists face images addressable by (group, person, entry).
// Images are immutable once stored; only their owning person may change,
// and only through MoveFaces.
type FaceStore interface {
	// StoreFace writes a new face image, creating the (group, person)
	// namespace if it does not exist yet.
	StoreFace(ctx context.Context, group, person string, image []byte) (FaceEntry, error)

	// ListFaces enumerates a person's faces by creation time ascending.
	// An existing person with zero faces yields an empty slice;
	// a person without a namespace yields ErrNotFound.
	ListFaces(ctx context.Context, group, person string) ([]FaceEntry, error)

	// GetLatestFace returns the most recently stored face image.
	// Returns ErrNotFound when the person owns no faces.
	GetLatestFace(ctx context.Context, group, person string) ([]byte, FaceEntry, error)

	// MoveFaces relocates every face owned by from to to, preserving each
	// face's creation timestamp. Entry identifiers are renamed on collision,
	// never overwritten. Returns the number of faces moved (0 when the
	// source owns none). The move is atomic: on failure every face already
	// moved is returned to the source.
	MoveFaces(ctx context.Context, group, from, to string) (int, error)

	// CountFaces returns the number of faces a person owns (0 when the
	// namespace is absent).
	CountFaces(ctx context.Context, group, person string) (int, error)

	// ListPersonDirs returns every person id with a namespace in the group.
	// A missing group yields an empty slice.
	ListPersonDirs(ctx context.Context, group string) ([]string, error)

	// DeletePersonIfEmpty removes a person namespace that owns zero faces.
	// Returns ErrConsistency if faces remain.
	DeletePersonIfEmpty(ctx context.Context, group, person string) error

	// DeleteGroup removes a group with all persons, faces and metadata.
	// Returns ErrNotFound if the group does not exist.
	DeleteGroup(ctx context.Context, group string) error
}

// MetadataStore persists one PersonMetadata record per (group, person).
type MetadataStore interface {
	// Put creates or replaces the stored metadata. CreatedAt is stamped on
	// the first write only; LastUpdated is refreshed on every write.
	Put(ctx context.Context, group, person string, meta PersonMetadata) error

	// Get returns the stored metadata or ErrNotFound.
	Get(ctx context.Context, group, person string) (PersonMetadata, error)

	// Delete removes the metadata. Deleting absent metadata is not an error.
	Delete(ctx context.Context, group, person string) error
}

// Store combines the face corpus and the metadata store. Both backends
// implement the combined interface so callers can wire a single value.
type Store interface {
	FaceStore
	MetadataStore
}
