// Package index maintains per-group in-memory HNSW indexes over stored face
// embeddings, giving the local matcher fast approximate nearest-neighbor
// candidate lookup without a round trip to the database.
package index

import (
	"errors"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// maxNeighbors is the HNSW M parameter.
const maxNeighbors = 16

// FaceRef identifies one indexed face.
type FaceRef struct {
	PersonID string
	EntryID  string
}

// groupIndex holds the HNSW graph and the node-to-face mapping of one group.
type groupIndex struct {
	graph  *hnsw.Graph[int64]
	refs   map[int64]FaceRef
	nextID int64
}

func newGroupIndex() *groupIndex {
	g := hnsw.NewGraph[int64]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return &groupIndex{
		graph: g,
		refs:  make(map[int64]FaceRef),
	}
}

// Index is a registry of per-group face embedding indexes. Safe for
// concurrent use.
type Index struct {
	mu     sync.RWMutex
	groups map[string]*groupIndex
}

// New creates an empty index registry.
func New() *Index {
	return &Index{groups: make(map[string]*groupIndex)}
}

// Add registers a face embedding under the group. Empty embeddings are
// ignored.
func (x *Index) Add(group string, ref FaceRef, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	gi, ok := x.groups[group]
	if !ok {
		gi = newGroupIndex()
		x.groups[group] = gi
	}

	id := gi.nextID
	gi.nextID++
	gi.graph.Add(hnsw.MakeNode(id, embedding))
	gi.refs[id] = ref
}

// Match is one nearest-neighbor result.
type Match struct {
	Ref      FaceRef
	Distance float64 // cosine distance, lower is closer
}

// Search returns up to k nearest faces in the group. An unknown group
// yields an empty result, not an error.
func (x *Index) Search(group string, embedding []float32, k int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, errors.New("empty query embedding")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	gi, ok := x.groups[group]
	if !ok {
		return nil, nil
	}

	neighbors := gi.graph.Search(embedding, k)
	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		ref, ok := gi.refs[n.Key]
		if !ok {
			// Reassigned or dropped nodes stay in the graph (HNSW has no
			// true deletion) but are filtered out of results here.
			continue
		}
		matches = append(matches, Match{
			Ref:      ref,
			Distance: cosineDistance(embedding, n.Value),
		})
	}
	return matches, nil
}

// ReassignPerson rewrites the owner of every indexed face of a person.
// Called after a merge so future candidate lookups point at the target.
func (x *Index) ReassignPerson(group, from, to string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	gi, ok := x.groups[group]
	if !ok {
		return
	}
	for id, ref := range gi.refs {
		if ref.PersonID == from {
			ref.PersonID = to
			gi.refs[id] = ref
		}
	}
}

// DropGroup discards the group's index.
func (x *Index) DropGroup(group string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.groups, group)
}

// Count returns the number of indexed faces in the group.
func (x *Index) Count(group string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	gi, ok := x.groups[group]
	if !ok {
		return 0
	}
	return len(gi.refs)
}

// cosineDistance computes 1 - cosine similarity.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
