package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-registry/internal/corpus"
)

// Store implements the corpus store on PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a PostgreSQL-backed corpus store on an initialized pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ corpus.Store = (*Store)(nil)

// personExists reports whether a person namespace exists: a person with at
// least one face row or a metadata row.
func (s *Store) personExists(ctx context.Context, group, person string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM faces WHERE group_id = $1 AND person_id = $2)
		    OR EXISTS(SELECT 1 FROM person_metadata WHERE group_id = $1 AND person_id = $2)
	`, group, person).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person exists: %w", err)
	}
	return exists, nil
}

// StoreFace writes a new face image.
func (s *Store) StoreFace(ctx context.Context, group, person string, image []byte) (corpus.FaceEntry, error) {
	if group == "" || person == "" {
		return corpus.FaceEntry{}, fmt.Errorf("%w: group and person are required", corpus.ErrInvalidArgument)
	}
	if len(image) == 0 {
		return corpus.FaceEntry{}, fmt.Errorf("%w: empty image", corpus.ErrInvalidArgument)
	}

	entry := corpus.FaceEntry{
		EntryID:  uuid.NewString() + ".jpg",
		GroupID:  group,
		PersonID: person,
		Size:     int64(len(image)),
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO faces (entry_id, group_id, person_id, image, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, entry.EntryID, group, person, image, entry.Size).Scan(&entry.CreatedAt)
	if err != nil {
		return corpus.FaceEntry{}, fmt.Errorf("insert face: %w", err)
	}
	return entry, nil
}

// AttachEmbedding stores the embedding vector for an already stored face.
func (s *Store) AttachEmbedding(ctx context.Context, group, person, entryID string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	result, err := s.pool.Exec(ctx, `
		UPDATE faces SET embedding = $4
		WHERE group_id = $1 AND person_id = $2 AND entry_id = $3
	`, group, person, entryID, vec)
	if err != nil {
		return fmt.Errorf("update face embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update face embedding: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: face %q of person %q in group %q", corpus.ErrNotFound, entryID, person, group)
	}
	return nil
}

// ListFaces enumerates a person's faces by creation time ascending.
func (s *Store) ListFaces(ctx context.Context, group, person string) ([]corpus.FaceEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, size, created_at
		FROM faces
		WHERE group_id = $1 AND person_id = $2
		ORDER BY created_at, entry_id
	`, group, person)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	entries := []corpus.FaceEntry{}
	for rows.Next() {
		entry := corpus.FaceEntry{GroupID: group, PersonID: person}
		if err := rows.Scan(&entry.EntryID, &entry.Size, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}

	if len(entries) == 0 {
		exists, err := s.personExists(ctx, group, person)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: person %q in group %q", corpus.ErrNotFound, person, group)
		}
	}
	return entries, nil
}

// GetLatestFace returns the most recently stored face image.
func (s *Store) GetLatestFace(ctx context.Context, group, person string) ([]byte, corpus.FaceEntry, error) {
	entry := corpus.FaceEntry{GroupID: group, PersonID: person}
	var image []byte

	err := s.pool.QueryRow(ctx, `
		SELECT entry_id, image, size, created_at
		FROM faces
		WHERE group_id = $1 AND person_id = $2
		ORDER BY created_at DESC, entry_id DESC
		LIMIT 1
	`, group, person).Scan(&entry.EntryID, &image, &entry.Size, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, corpus.FaceEntry{}, fmt.Errorf("%w: person %q in group %q has no faces", corpus.ErrNotFound, person, group)
	}
	if err != nil {
		return nil, corpus.FaceEntry{}, fmt.Errorf("query latest face: %w", err)
	}
	return image, entry, nil
}

// MoveFaces relocates every face owned by from to to. The whole move runs in
// one transaction. Entry identifiers are renamed on collision.
func (s *Store) MoveFaces(ctx context.Context, group, from, to string) (int, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT entry_id FROM faces
		WHERE group_id = $1 AND person_id = $2
		ORDER BY entry_id
		FOR UPDATE
	`, group, from)
	if err != nil {
		return 0, fmt.Errorf("query source faces: %w", err)
	}
	var entryIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan entry id: %w", err)
		}
		entryIDs = append(entryIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate source faces: %w", err)
	}
	rows.Close()

	moved := 0
	for _, entryID := range entryIDs {
		targetID, err := uniqueEntryID(ctx, tx, group, to, entryID)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE faces SET person_id = $4, entry_id = $5
			WHERE group_id = $1 AND person_id = $2 AND entry_id = $3
		`, group, from, entryID, to, targetID); err != nil {
			return 0, fmt.Errorf("move face %q: %w", entryID, err)
		}
		moved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit face move: %w", err)
	}
	return moved, nil
}

// uniqueEntryID returns entryID, renamed with a numeric suffix before the
// extension when the target person already owns an entry with that
// identifier. Same shape as the filesystem backend's rename.
func uniqueEntryID(ctx context.Context, tx *sql.Tx, group, person, entryID string) (string, error) {
	ext := path.Ext(entryID)
	base := strings.TrimSuffix(entryID, ext)

	candidate := entryID
	for i := 1; ; i++ {
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM faces WHERE group_id = $1 AND person_id = $2 AND entry_id = $3)
		`, group, person, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check entry collision: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// CountFaces returns the number of faces a person owns.
func (s *Store) CountFaces(ctx context.Context, group, person string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM faces WHERE group_id = $1 AND person_id = $2
	`, group, person).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// ListPersonDirs returns every person id with faces or metadata in the group.
func (s *Store) ListPersonDirs(ctx context.Context, group string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT person_id FROM faces WHERE group_id = $1
		UNION
		SELECT person_id FROM person_metadata WHERE group_id = $1
		ORDER BY person_id
	`, group)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	persons := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan person id: %w", err)
		}
		persons = append(persons, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// DeletePersonIfEmpty verifies the person owns zero faces. The namespace is
// implicit in the relational backend, so there is nothing else to remove.
func (s *Store) DeletePersonIfEmpty(ctx context.Context, group, person string) error {
	count, err := s.CountFaces(ctx, group, person)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: person %q in group %q still owns %d faces", corpus.ErrConsistency, person, group, count)
	}
	return nil
}

// DeleteGroup removes a group with all persons, faces and metadata.
func (s *Store) DeleteGroup(ctx context.Context, group string) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	facesResult, err := tx.ExecContext(ctx, "DELETE FROM faces WHERE group_id = $1", group)
	if err != nil {
		return fmt.Errorf("delete group faces: %w", err)
	}
	metaResult, err := tx.ExecContext(ctx, "DELETE FROM person_metadata WHERE group_id = $1", group)
	if err != nil {
		return fmt.Errorf("delete group metadata: %w", err)
	}

	faces, _ := facesResult.RowsAffected()
	metas, _ := metaResult.RowsAffected()
	if faces == 0 && metas == 0 {
		return fmt.Errorf("%w: group %q", corpus.ErrNotFound, group)
	}
	return tx.Commit()
}

// SimilarFaces finds the closest stored faces in the group by cosine distance.
func (s *Store) SimilarFaces(ctx context.Context, group string, embedding []float32, limit int) ([]corpus.FaceEntry, []float64, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, person_id, size, created_at, embedding <=> $2::vector AS distance
		FROM faces
		WHERE group_id = $1 AND embedding IS NOT NULL
		ORDER BY distance
		LIMIT $3
	`, group, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var entries []corpus.FaceEntry
	var distances []float64
	for rows.Next() {
		entry := corpus.FaceEntry{GroupID: group}
		var dist float64
		if err := rows.Scan(&entry.EntryID, &entry.PersonID, &entry.Size, &entry.CreatedAt, &dist); err != nil {
			return nil, nil, fmt.Errorf("scan similar face: %w", err)
		}
		entries = append(entries, entry)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar faces: %w", err)
	}
	return entries, distances, nil
}

// Put creates or replaces the stored metadata.
func (s *Store) Put(ctx context.Context, group, person string, meta corpus.PersonMetadata) error {
	if group == "" || person == "" {
		return fmt.Errorf("%w: group and person are required", corpus.ErrInvalidArgument)
	}

	// Timestamps live in dedicated columns; Get restores them.
	meta.CreatedAt = time.Time{}
	meta.LastUpdated = time.Time{}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO person_metadata (group_id, person_id, metadata)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, person_id)
		DO UPDATE SET metadata = EXCLUDED.metadata, last_updated = NOW()
	`, group, person, payload); err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// Get returns the stored metadata or ErrNotFound.
func (s *Store) Get(ctx context.Context, group, person string) (corpus.PersonMetadata, error) {
	var payload []byte
	var meta corpus.PersonMetadata

	err := s.pool.QueryRow(ctx, `
		SELECT metadata, created_at, last_updated
		FROM person_metadata
		WHERE group_id = $1 AND person_id = $2
	`, group, person).Scan(&payload, &meta.CreatedAt, &meta.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.PersonMetadata{}, fmt.Errorf("%w: metadata of person %q in group %q", corpus.ErrNotFound, person, group)
	}
	if err != nil {
		return corpus.PersonMetadata{}, fmt.Errorf("query metadata: %w", err)
	}

	createdAt, lastUpdated := meta.CreatedAt, meta.LastUpdated
	if err := json.Unmarshal(payload, &meta); err != nil {
		return corpus.PersonMetadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	meta.CreatedAt = createdAt
	meta.LastUpdated = lastUpdated
	return meta, nil
}

// Delete removes the metadata. Deleting absent metadata is not an error.
func (s *Store) Delete(ctx context.Context, group, person string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM person_metadata WHERE group_id = $1 AND person_id = $2
	`, group, person); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
