// Package fs implements the corpus contracts on top of a plain directory
// tree: data/<group>/<person>/<entry>.jpg with a metadata.json per person.
// The layout survives process restarts and is trivially inspectable, which
// makes human review of merge decisions easy.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/corpus"
)

const metadataFile = "metadata.json"

// imageExtensions lists the file extensions treated as face images.
var imageExtensions = []string{".jpg", ".jpeg", ".png"}

// Store is a filesystem-backed corpus. All methods are safe for concurrent
// use across groups; within a group the registry serializes mutations.
type Store struct {
	dataDir string
}

// New creates the data directory if needed and returns a Store rooted there.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%w: data directory is required", corpus.ErrInvalidArgument)
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// DataDir returns the root directory of the store.
func (s *Store) DataDir() string {
	return s.dataDir
}

// validateID rejects identifiers that could escape the directory tree.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: malformed identifier %q", corpus.ErrInvalidArgument, id)
	}
	return nil
}

func (s *Store) groupDir(group string) string {
	return filepath.Join(s.dataDir, group)
}

func (s *Store) personDir(group, person string) string {
	return filepath.Join(s.dataDir, group, person)
}

func isImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// StoreFace writes a new face image under the person's directory.
func (s *Store) StoreFace(ctx context.Context, group, person string, image []byte) (corpus.FaceEntry, error) {
	if err := validateID(group); err != nil {
		return corpus.FaceEntry{}, err
	}
	if err := validateID(person); err != nil {
		return corpus.FaceEntry{}, err
	}
	if len(image) == 0 {
		return corpus.FaceEntry{}, fmt.Errorf("%w: empty image", corpus.ErrInvalidArgument)
	}

	dir := s.personDir(group, person)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return corpus.FaceEntry{}, fmt.Errorf("creating person directory: %w", err)
	}

	entryID := uuid.NewString() + ".jpg"
	path := filepath.Join(dir, entryID)
	if _, err := os.Stat(path); err == nil {
		// A UUID collision on disk. Practically unreachable, but never overwrite.
		return corpus.FaceEntry{}, fmt.Errorf("%w: face entry %s already exists", corpus.ErrConflict, entryID)
	}
	if err := os.WriteFile(path, image, 0o640); err != nil {
		return corpus.FaceEntry{}, fmt.Errorf("writing face image: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return corpus.FaceEntry{}, fmt.Errorf("stat face image: %w", err)
	}

	return corpus.FaceEntry{
		EntryID:   entryID,
		GroupID:   group,
		PersonID:  person,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// ListFaces enumerates the person's faces sorted by creation time ascending.
func (s *Store) ListFaces(ctx context.Context, group, person string) ([]corpus.FaceEntry, error) {
	if err := validateID(group); err != nil {
		return nil, err
	}
	if err := validateID(person); err != nil {
		return nil, err
	}

	dir := s.personDir(group, person)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: person %q in group %q", corpus.ErrNotFound, person, group)
		}
		return nil, fmt.Errorf("reading person directory: %w", err)
	}

	faces := make([]corpus.FaceEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !isImageFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat face entry %s: %w", de.Name(), err)
		}
		faces = append(faces, corpus.FaceEntry{
			EntryID:   de.Name(),
			GroupID:   group,
			PersonID:  person,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(faces, func(i, j int) bool {
		if faces[i].CreatedAt.Equal(faces[j].CreatedAt) {
			return faces[i].EntryID < faces[j].EntryID
		}
		return faces[i].CreatedAt.Before(faces[j].CreatedAt)
	})
	return faces, nil
}

// GetLatestFace returns the bytes and entry of the most recent face.
func (s *Store) GetLatestFace(ctx context.Context, group, person string) ([]byte, corpus.FaceEntry, error) {
	faces, err := s.ListFaces(ctx, group, person)
	if err != nil {
		return nil, corpus.FaceEntry{}, err
	}
	if len(faces) == 0 {
		return nil, corpus.FaceEntry{}, fmt.Errorf("%w: no faces for person %q in group %q", corpus.ErrNotFound, person, group)
	}

	latest := faces[len(faces)-1]
	data, err := os.ReadFile(filepath.Join(s.personDir(group, person), latest.EntryID))
	if err != nil {
		return nil, corpus.FaceEntry{}, fmt.Errorf("reading face image: %w", err)
	}
	return data, latest, nil
}

// MoveFaces relocates every face from one person to another. Renames stay
// on the same filesystem, so each individual move is atomic and preserves
// the file's modification time. On mid-move failure the already-moved
// entries are renamed back before the error is returned.
func (s *Store) MoveFaces(ctx context.Context, group, from, to string) (int, error) {
	if err := validateID(group); err != nil {
		return 0, err
	}
	if err := validateID(from); err != nil {
		return 0, err
	}
	if err := validateID(to); err != nil {
		return 0, err
	}

	faces, err := s.ListFaces(ctx, group, from)
	if err != nil {
		return 0, err
	}
	if len(faces) == 0 {
		return 0, nil
	}

	targetDir := s.personDir(group, to)
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return 0, fmt.Errorf("creating target person directory: %w", err)
	}

	sourceDir := s.personDir(group, from)
	type movedEntry struct {
		src, dst string
	}
	var moved []movedEntry

	rollback := func() {
		for i := len(moved) - 1; i >= 0; i-- {
			_ = os.Rename(moved[i].dst, moved[i].src)
		}
	}

	for _, face := range faces {
		src := filepath.Join(sourceDir, face.EntryID)
		dstName, err := uniqueTargetName(targetDir, face.EntryID)
		if err != nil {
			rollback()
			return 0, err
		}
		dst := filepath.Join(targetDir, dstName)
		if err := os.Rename(src, dst); err != nil {
			rollback()
			return 0, fmt.Errorf("moving face %s: %w", face.EntryID, err)
		}
		moved = append(moved, movedEntry{src: src, dst: dst})
	}

	return len(moved), nil
}

// uniqueTargetName returns name, or a "<base>_N<ext>" variant when name is
// already taken under dir. Mirrors the collision handling the registry has
// always used, so re-imported trees remain compatible.
func uniqueTargetName(dir, name string) (string, error) {
	candidate := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		_, err := os.Stat(filepath.Join(dir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probing target name %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", base, counter, ext)
	}
}

// CountFaces returns the number of faces a person owns.
func (s *Store) CountFaces(ctx context.Context, group, person string) (int, error) {
	faces, err := s.ListFaces(ctx, group, person)
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(faces), nil
}

// ListPersonDirs returns every person id present in the group.
func (s *Store) ListPersonDirs(ctx context.Context, group string) ([]string, error) {
	if err := validateID(group); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.groupDir(group))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading group directory: %w", err)
	}

	var persons []string
	for _, de := range entries {
		if de.IsDir() {
			persons = append(persons, de.Name())
		}
	}
	return persons, nil
}

// DeletePersonIfEmpty removes a person namespace that owns no faces.
func (s *Store) DeletePersonIfEmpty(ctx context.Context, group, person string) error {
	faces, err := s.ListFaces(ctx, group, person)
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			return nil
		}
		return err
	}
	if len(faces) > 0 {
		return fmt.Errorf("%w: person %q in group %q still owns %d faces", corpus.ErrConsistency, person, group, len(faces))
	}
	if err := os.RemoveAll(s.personDir(group, person)); err != nil {
		return fmt.Errorf("removing person directory: %w", err)
	}
	return nil
}

// DeleteGroup removes the whole group subtree.
func (s *Store) DeleteGroup(ctx context.Context, group string) error {
	if err := validateID(group); err != nil {
		return err
	}
	dir := s.groupDir(group)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: group %q", corpus.ErrNotFound, group)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing group directory: %w", err)
	}
	return nil
}

// Put writes the metadata record, preserving the original creation time on
// rewrites. The file is written to a temp name and renamed into place so a
// crashed writer never leaves a truncated record.
func (s *Store) Put(ctx context.Context, group, person string, meta corpus.PersonMetadata) error {
	if err := validateID(group); err != nil {
		return err
	}
	if err := validateID(person); err != nil {
		return err
	}

	dir := s.personDir(group, person)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating person directory: %w", err)
	}

	existing, err := s.Get(ctx, group, person)
	switch {
	case err == nil:
		meta.CreatedAt = existing.CreatedAt
	case errors.Is(err, corpus.ErrNotFound):
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = time.Now()
		}
	default:
		return err
	}
	meta.LastUpdated = time.Now()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	path := filepath.Join(dir, metadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing metadata: %w", err)
	}
	return nil
}

// Get reads the metadata record for (group, person).
func (s *Store) Get(ctx context.Context, group, person string) (corpus.PersonMetadata, error) {
	if err := validateID(group); err != nil {
		return corpus.PersonMetadata{}, err
	}
	if err := validateID(person); err != nil {
		return corpus.PersonMetadata{}, err
	}

	data, err := os.ReadFile(filepath.Join(s.personDir(group, person), metadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return corpus.PersonMetadata{}, fmt.Errorf("%w: metadata for person %q in group %q", corpus.ErrNotFound, person, group)
		}
		return corpus.PersonMetadata{}, fmt.Errorf("reading metadata: %w", err)
	}

	var meta corpus.PersonMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return corpus.PersonMetadata{}, fmt.Errorf("parsing metadata: %w", err)
	}
	return meta, nil
}

// Delete removes the metadata record. Absent metadata is not an error.
func (s *Store) Delete(ctx context.Context, group, person string) error {
	if err := validateID(group); err != nil {
		return err
	}
	if err := validateID(person); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.personDir(group, person), metadataFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	return nil
}
