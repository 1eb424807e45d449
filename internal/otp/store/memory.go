package store

import (
	"context"
	"sync"
	"time"

	"member-portal/internal/otp/domain"
)

// MemoryStore is the volatile Store backend. State is lost on restart,
// which is acceptable for short interactive login flows.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]*domain.Entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]*domain.Entry),
		nowF: time.Now,
	}
}

// Put creates or replaces the entry for key.
func (s *MemoryStore) Put(ctx context.Context, key string, entry *domain.Entry) error {
	e := *entry
	s.mu.Lock()
	s.m[key] = &e
	s.mu.Unlock()
	return nil
}

// Get returns the live entry for key, deleting it eagerly when expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Expired(s.nowF()) {
		delete(s.m, key)
		return nil, ErrNotFound
	}
	out := *e
	return &out, nil
}

// Delete removes the entry for key. Idempotent.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// IncrementAttempts bumps the attempt counter under the store lock and
// returns the updated entry.
func (s *MemoryStore) IncrementAttempts(ctx context.Context, key string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok || e.Expired(s.nowF()) {
		delete(s.m, key)
		return nil, ErrNotFound
	}
	e.Attempts++
	out := *e
	return &out, nil
}

// StartSweeper removes expired entries every interval until the returned
// stop function is called. The sweep bounds memory only; Get re-checks
// expiry regardless.
func (s *MemoryStore) StartSweeper(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				s.sweep()
			}
		}
	}()
	return func() { close(done) }
}

func (s *MemoryStore) sweep() {
	now := s.nowF()
	s.mu.Lock()
	for k, e := range s.m {
		if e.Expired(now) {
			delete(s.m, k)
		}
	}
	s.mu.Unlock()
}
