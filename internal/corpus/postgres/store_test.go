//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/corpus"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		EmbeddingDim: 8,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx, cfg.EmbeddingDim); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(seed int) []float32 {
	emb := make([]float32, 8)
	for i := range emb {
		emb[i] = float32(i+seed) / 8.0
	}
	return emb
}

func TestStore_Faces(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	t.Run("StoreAndList", func(t *testing.T) {
		entry, err := store.StoreFace(ctx, "wedding", "alice", []byte("image-1"))
		if err != nil {
			t.Fatalf("Failed to store face: %v", err)
		}
		if entry.EntryID == "" {
			t.Error("Expected non-empty entry id")
		}
		if entry.Size != int64(len("image-1")) {
			t.Errorf("Expected size %d, got %d", len("image-1"), entry.Size)
		}

		if _, err := store.StoreFace(ctx, "wedding", "alice", []byte("image-2")); err != nil {
			t.Fatalf("Failed to store second face: %v", err)
		}

		entries, err := store.ListFaces(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to list faces: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("Expected 2 faces, got %d", len(entries))
		}
	})

	t.Run("ListUnknownPerson", func(t *testing.T) {
		_, err := store.ListFaces(ctx, "wedding", "nobody")
		if !errors.Is(err, corpus.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetLatestFace", func(t *testing.T) {
		image, entry, err := store.GetLatestFace(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to get latest face: %v", err)
		}
		if string(image) != "image-2" {
			t.Errorf("Expected latest image 'image-2', got '%s'", image)
		}
		if entry.PersonID != "alice" {
			t.Errorf("Expected person 'alice', got '%s'", entry.PersonID)
		}
	})

	t.Run("CountFaces", func(t *testing.T) {
		count, err := store.CountFaces(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to count faces: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2 faces, got %d", count)
		}

		count, err = store.CountFaces(ctx, "wedding", "nobody")
		if err != nil {
			t.Fatalf("Failed to count faces of unknown person: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected 0 faces for unknown person, got %d", count)
		}
	})

	t.Run("MoveFaces", func(t *testing.T) {
		if _, err := store.StoreFace(ctx, "wedding", "bob", []byte("bob-1")); err != nil {
			t.Fatalf("Failed to store face: %v", err)
		}

		moved, err := store.MoveFaces(ctx, "wedding", "bob", "alice")
		if err != nil {
			t.Fatalf("Failed to move faces: %v", err)
		}
		if moved != 1 {
			t.Errorf("Expected 1 moved face, got %d", moved)
		}

		count, _ := store.CountFaces(ctx, "wedding", "alice")
		if count != 3 {
			t.Errorf("Expected 3 faces after move, got %d", count)
		}
		count, _ = store.CountFaces(ctx, "wedding", "bob")
		if count != 0 {
			t.Errorf("Expected 0 faces at source after move, got %d", count)
		}
	})

	t.Run("MoveFacesEmptySource", func(t *testing.T) {
		moved, err := store.MoveFaces(ctx, "wedding", "nobody", "alice")
		if err != nil {
			t.Fatalf("Failed to move from empty source: %v", err)
		}
		if moved != 0 {
			t.Errorf("Expected 0 moved faces, got %d", moved)
		}
	})

	t.Run("MoveFacesNameCollision", func(t *testing.T) {
		entry, err := store.StoreFace(ctx, "wedding", "eve", []byte("eve-face"))
		if err != nil {
			t.Fatalf("Failed to store face: %v", err)
		}

		// Plant a target row with the identical entry id.
		if _, err := pool.Exec(ctx, `
			INSERT INTO faces (entry_id, group_id, person_id, image, size, created_at)
			VALUES ($1, 'wedding', 'mallory', $2, $3, NOW())
		`, entry.EntryID, []byte("existing"), len("existing")); err != nil {
			t.Fatalf("Failed to plant colliding row: %v", err)
		}

		moved, err := store.MoveFaces(ctx, "wedding", "eve", "mallory")
		if err != nil {
			t.Fatalf("Failed to move faces: %v", err)
		}
		if moved != 1 {
			t.Errorf("Expected 1 moved face, got %d", moved)
		}

		// The suffix goes before the extension, like the filesystem backend.
		renamed := strings.TrimSuffix(entry.EntryID, ".jpg") + "_1.jpg"
		var exists bool
		if err := pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM faces WHERE group_id = 'wedding' AND person_id = 'mallory' AND entry_id = $1)
		`, renamed).Scan(&exists); err != nil {
			t.Fatalf("Failed to check renamed entry: %v", err)
		}
		if !exists {
			t.Errorf("Expected renamed entry %q at target", renamed)
		}

		count, _ := store.CountFaces(ctx, "wedding", "mallory")
		if count != 2 {
			t.Errorf("Expected 2 faces at target after collision rename, got %d", count)
		}
	})

	t.Run("ListPersonDirs", func(t *testing.T) {
		persons, err := store.ListPersonDirs(ctx, "wedding")
		if err != nil {
			t.Fatalf("Failed to list persons: %v", err)
		}
		if len(persons) != 1 || persons[0] != "alice" {
			t.Errorf("Expected [alice], got %v", persons)
		}
	})

	t.Run("DeletePersonIfEmpty", func(t *testing.T) {
		err := store.DeletePersonIfEmpty(ctx, "wedding", "alice")
		if !errors.Is(err, corpus.ErrConsistency) {
			t.Errorf("Expected ErrConsistency for person with faces, got %v", err)
		}

		if err := store.DeletePersonIfEmpty(ctx, "wedding", "bob"); err != nil {
			t.Errorf("Failed to delete empty person: %v", err)
		}
	})
}

func TestStore_Embeddings(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	entries := make([]corpus.FaceEntry, 3)
	for i := range entries {
		entry, err := store.StoreFace(ctx, "party", fmt.Sprintf("person-%d", i), []byte("img"))
		if err != nil {
			t.Fatalf("Failed to store face: %v", err)
		}
		if err := store.AttachEmbedding(ctx, "party", entry.PersonID, entry.EntryID, testEmbedding(i*4)); err != nil {
			t.Fatalf("Failed to attach embedding: %v", err)
		}
		entries[i] = entry
	}

	t.Run("AttachUnknownFace", func(t *testing.T) {
		err := store.AttachEmbedding(ctx, "party", "person-0", "missing.jpg", testEmbedding(0))
		if !errors.Is(err, corpus.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SimilarFaces", func(t *testing.T) {
		found, distances, err := store.SimilarFaces(ctx, "party", testEmbedding(0), 2)
		if err != nil {
			t.Fatalf("Failed to query similar faces: %v", err)
		}
		if len(found) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(found))
		}
		if found[0].PersonID != "person-0" {
			t.Errorf("Expected closest match 'person-0', got '%s'", found[0].PersonID)
		}
		if distances[1] < distances[0] {
			t.Error("Distances not sorted")
		}
	})

	t.Run("SimilarFacesOtherGroup", func(t *testing.T) {
		found, _, err := store.SimilarFaces(ctx, "other", testEmbedding(0), 5)
		if err != nil {
			t.Fatalf("Failed to query similar faces: %v", err)
		}
		if len(found) != 0 {
			t.Errorf("Expected no results in empty group, got %d", len(found))
		}
	})
}

func TestStore_Metadata(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	t.Run("PutAndGet", func(t *testing.T) {
		meta := corpus.PersonMetadata{
			PersonID:        "alice",
			RecognitionType: "recognized",
			Confidence:      0.92,
			Attrs:           map[string]string{"name": "Alice"},
		}
		if err := store.Put(ctx, "wedding", "alice", meta); err != nil {
			t.Fatalf("Failed to put metadata: %v", err)
		}

		got, err := store.Get(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to get metadata: %v", err)
		}
		if got.RecognitionType != "recognized" {
			t.Errorf("Expected recognition type 'recognized', got '%s'", got.RecognitionType)
		}
		if got.Attrs["name"] != "Alice" {
			t.Errorf("Expected name attr 'Alice', got '%s'", got.Attrs["name"])
		}
		if got.CreatedAt.IsZero() {
			t.Error("Expected CreatedAt to be stamped")
		}
	})

	t.Run("CreatedAtPreservedOnRewrite", func(t *testing.T) {
		first, err := store.Get(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to get metadata: %v", err)
		}

		if err := store.Put(ctx, "wedding", "alice", corpus.PersonMetadata{
			PersonID:        "alice",
			RecognitionType: "recognized",
		}); err != nil {
			t.Fatalf("Failed to rewrite metadata: %v", err)
		}

		second, err := store.Get(ctx, "wedding", "alice")
		if err != nil {
			t.Fatalf("Failed to get metadata: %v", err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("Expected CreatedAt preserved, got %v then %v", first.CreatedAt, second.CreatedAt)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := store.Get(ctx, "wedding", "nobody")
		if !errors.Is(err, corpus.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := store.Delete(ctx, "wedding", "alice"); err != nil {
			t.Fatalf("Failed to delete metadata: %v", err)
		}
		if err := store.Delete(ctx, "wedding", "alice"); err != nil {
			t.Errorf("Expected idempotent delete, got %v", err)
		}
	})
}

func TestStore_DeleteGroup(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	if _, err := store.StoreFace(ctx, "trip", "carol", []byte("img")); err != nil {
		t.Fatalf("Failed to store face: %v", err)
	}
	if err := store.Put(ctx, "trip", "carol", corpus.PersonMetadata{PersonID: "carol"}); err != nil {
		t.Fatalf("Failed to put metadata: %v", err)
	}

	if err := store.DeleteGroup(ctx, "trip"); err != nil {
		t.Fatalf("Failed to delete group: %v", err)
	}

	persons, err := store.ListPersonDirs(ctx, "trip")
	if err != nil {
		t.Fatalf("Failed to list persons: %v", err)
	}
	if len(persons) != 0 {
		t.Errorf("Expected no persons after group delete, got %v", persons)
	}

	err = store.DeleteGroup(ctx, "trip")
	if !errors.Is(err, corpus.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for absent group, got %v", err)
	}
}
