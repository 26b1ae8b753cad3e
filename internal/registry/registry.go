// Package registry implements the identity lifecycle for the face corpus:
// minting temporary identities for unmatched faces, classifying persons as
// permanent or temporary, enumerating a group's persons and consolidating
// identities through the merge engine.
//
// Classification is a metadata property, never derived from the identifier
// format. Both classes share the UUID format, so a merged or reclassified
// person keeps its identifier and no face or metadata reference needs a
// cascading rename.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/corpus"
)

// Recognition type tags written into person metadata.
const (
	TypeRecognized = "recognized"
	TypeTempUser   = "temp_user"
	TypeUnknown    = "unknown"
)

// mintAttempts bounds the internal retry loop on identifier collisions.
// With 122 random bits a single retry is already unreachable in practice.
const mintAttempts = 5

// Registry tracks person identities on top of a corpus store.
type Registry struct {
	store corpus.Store
	locks *GroupLocks
}

// New creates a registry backed by the given store.
func New(store corpus.Store) *Registry {
	return &Registry{
		store: store,
		locks: NewGroupLocks(),
	}
}

// Locks exposes the per-group lock registry so multi-step writers (merge,
// ingestion) can serialize against each other.
func (r *Registry) Locks() *GroupLocks {
	return r.locks
}

// Store returns the underlying corpus store.
func (r *Registry) Store() corpus.Store {
	return r.store
}

// MintTemporaryIdentity generates a fresh person identifier unique within
// the group and records it as temporary. Safe to call concurrently for the
// same group: identifiers come from a 128-bit random space, and the rare
// collision is retried internally rather than surfaced.
func (r *Registry) MintTemporaryIdentity(ctx context.Context, group string) (string, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		personID := uuid.NewString()

		exists, err := r.personExists(ctx, group, personID)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		meta := corpus.PersonMetadata{
			PersonID:        personID,
			RecognitionType: TypeTempUser,
			Confidence:      0,
			IsTempUser:      true,
		}
		if err := r.store.Put(ctx, group, personID, meta); err != nil {
			return "", fmt.Errorf("writing temporary identity metadata: %w", err)
		}
		return personID, nil
	}
	return "", fmt.Errorf("%w: could not mint a unique identifier in group %q", corpus.ErrConflict, group)
}

// RegisterPermanentIdentity pre-registers a caller-assigned permanent
// identity. Fails with ErrConflict when the person already exists.
func (r *Registry) RegisterPermanentIdentity(ctx context.Context, group, personID string) error {
	if personID == "" {
		return fmt.Errorf("%w: person id is required", corpus.ErrInvalidArgument)
	}

	exists, err := r.personExists(ctx, group, personID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: person %q already exists in group %q", corpus.ErrConflict, personID, group)
	}

	meta := corpus.PersonMetadata{
		PersonID:        personID,
		RecognitionType: TypeRecognized,
		IsTempUser:      false,
	}
	if err := r.store.Put(ctx, group, personID, meta); err != nil {
		return fmt.Errorf("writing permanent identity metadata: %w", err)
	}
	return nil
}

// personExists reports whether a person has metadata or faces in the group.
func (r *Registry) personExists(ctx context.Context, group, personID string) (bool, error) {
	_, err := r.store.Get(ctx, group, personID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, corpus.ErrNotFound) {
		return false, err
	}

	count, err := r.store.CountFaces(ctx, group, personID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsTemporary reports whether the person's stored metadata marks it as a
// provisional identity. A person without metadata but with stored faces is
// treated as permanent; a person with neither fails with ErrNotFound.
func (r *Registry) IsTemporary(ctx context.Context, group, personID string) (bool, error) {
	meta, err := r.store.Get(ctx, group, personID)
	if err == nil {
		return meta.IsTempUser, nil
	}
	if !errors.Is(err, corpus.ErrNotFound) {
		return false, err
	}

	count, err := r.store.CountFaces(ctx, group, personID)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("%w: person %q in group %q", corpus.ErrNotFound, personID, group)
	}
	return false, nil
}

// PersonInfo describes one person in a listing.
type PersonInfo struct {
	PersonID  string                `json:"person_id"`
	FaceCount int                   `json:"face_count"`
	Metadata  corpus.PersonMetadata `json:"metadata"`
}

// Summary carries the aggregate counts of a listing.
type Summary struct {
	TotalUsers     int `json:"total_users"`
	PermanentUsers int `json:"permanent_users"`
	TemporaryUsers int `json:"temporary_users"`
}

// PersonList partitions a group's persons by classification.
type PersonList struct {
	Permanent []PersonInfo `json:"permanent"`
	Temporary []PersonInfo `json:"temporary"`
	Summary   Summary      `json:"summary"`
}

// ListOptions filters a listing.
type ListOptions struct {
	// Name, when set, keeps only persons whose "name" attribute matches
	// after normalization (case and diacritics insensitive).
	Name string
}

// ListPersons enumerates every person in the group that owns at least one
// stored face, annotated with face count and metadata and partitioned by
// classification. Each person appears exactly once.
func (r *Registry) ListPersons(ctx context.Context, group string, opts ListOptions) (PersonList, error) {
	personIDs, err := r.store.ListPersonDirs(ctx, group)
	if err != nil {
		return PersonList{}, err
	}

	nameFilter := ""
	if opts.Name != "" {
		nameFilter = NormalizeName(opts.Name)
	}

	list := PersonList{
		Permanent: []PersonInfo{},
		Temporary: []PersonInfo{},
	}
	for _, personID := range personIDs {
		count, err := r.store.CountFaces(ctx, group, personID)
		if err != nil {
			return PersonList{}, err
		}
		if count == 0 {
			// Namespaces without faces (e.g. pre-registered identities that
			// never received one) are invisible to listings.
			continue
		}

		meta, err := r.store.Get(ctx, group, personID)
		if err != nil && !errors.Is(err, corpus.ErrNotFound) {
			return PersonList{}, err
		}

		if nameFilter != "" && NormalizeName(meta.Attrs["name"]) != nameFilter {
			continue
		}

		info := PersonInfo{
			PersonID:  personID,
			FaceCount: count,
			Metadata:  meta,
		}
		if meta.IsTempUser {
			list.Temporary = append(list.Temporary, info)
		} else {
			list.Permanent = append(list.Permanent, info)
		}
	}

	list.Summary = Summary{
		TotalUsers:     len(list.Permanent) + len(list.Temporary),
		PermanentUsers: len(list.Permanent),
		TemporaryUsers: len(list.Temporary),
	}
	return list, nil
}

// DeleteGroup removes a group and everything it contains.
func (r *Registry) DeleteGroup(ctx context.Context, group string) error {
	lock := r.locks.Get(group)
	lock.Lock()
	defer lock.Unlock()

	return r.store.DeleteGroup(ctx, group)
}
