package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps visitor records in process. The map lock is only held to
// find or create a key's entry; the check-and-record runs under that entry's
// own lock, so unrelated visitors never wait on each other.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]*memoryEntry
}

type memoryEntry struct {
	mu   sync.Mutex
	last time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]*memoryEntry)}
}

func (s *MemoryStore) entry(key Key) *memoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &memoryEntry{}
		s.entries[key] = ent
	}
	return ent
}

func (s *MemoryStore) TryVisit(_ context.Context, key Key, now time.Time, cooldown time.Duration) (Decision, error) {
	ent := s.entry(key)

	ent.mu.Lock()
	defer ent.mu.Unlock()

	last := ent.last
	if !eligible(last, now, cooldown) {
		return Decision{Allowed: false, LastVisit: last}, nil
	}
	ent.last = now
	return Decision{Allowed: true, LastVisit: last}, nil
}

// LastVisit returns the recorded visit for key, if any.
func (s *MemoryStore) LastVisit(key Key) (time.Time, bool) {
	s.mu.Lock()
	ent, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.last, !ent.last.IsZero()
}
