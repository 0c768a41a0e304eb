package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	record    *Record
	token     string        // owner of an in-flight entry
	done      chan struct{} // closed when an in-flight entry completes or is released
	expiresAt time.Time
}

// MemoryStore is a single-process Store. Waiters are woken as soon as the
// holder completes or releases.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (s *MemoryStore) Reserve(_ context.Context, id string, lease time.Duration) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[id]; ok {
		if now.Before(e.expiresAt) {
			if e.record != nil {
				rec := *e.record
				return Reservation{Record: &rec}, nil
			}
			return Reservation{Wait: e.done}, nil
		}
		s.dropLocked(id, e)
	}

	token := uuid.NewString()
	s.entries[id] = &memoryEntry{token: token, done: make(chan struct{}), expiresAt: now.Add(lease)}
	return Reservation{Acquired: true, Token: token}, nil
}

func (s *MemoryStore) Complete(_ context.Context, id, token string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[id]
	switch {
	case !ok:
		e = &memoryEntry{}
		s.entries[id] = e
	case !now.Before(e.expiresAt):
		// Whatever was there has lapsed; start over.
		s.dropLocked(id, e)
		e = &memoryEntry{}
		s.entries[id] = e
	case e.record != nil || e.token != token:
		return ErrLeaseLost
	}

	e.record = &rec
	e.token = ""
	e.expiresAt = now.Add(ttl)
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok && e.record == nil && e.token == token {
		s.dropLocked(id, e)
	}
	return nil
}

// Len returns the number of entries, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			s.dropLocked(id, e)
		}
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *MemoryStore) dropLocked(id string, e *memoryEntry) {
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
	delete(s.entries, id)
}
