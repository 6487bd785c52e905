package syncengine

import (
	"sync"

	"github.com/google/uuid"
)

// mappingLocks serializes syncs per mapping id. A manual sync-now and the
// periodic sync for the same mapping never interleave their membership
// write and log write; different mappings sync fully in parallel.
//
// Entries are never removed; the map is bounded by the number of mappings.
type mappingLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMappingLocks() *mappingLocks {
	return &mappingLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// acquire blocks until the mapping's exclusive section is held and returns
// the release function.
func (l *mappingLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
