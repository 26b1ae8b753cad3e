package registry

import "sync"

// GroupLocks hands out one mutex per group key. A group's lock is held for
// the duration of a merge or an ingestion write phase, so the two can never
// interleave on the same on-disk namespace. Locks for different groups are
// independent and never contend.
type GroupLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGroupLocks creates an empty lock registry.
func NewGroupLocks() *GroupLocks {
	return &GroupLocks{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for a group, creating it on first use. Lock entries
// are never removed; the per-group footprint is one mutex.
func (g *GroupLocks) Get(group string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[group]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[group] = lock
	}
	return lock
}
