package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"authd/internal/storage"
)

// Store is an in-process KeyValue used in tests and single-node local runs.
// A mutex stands in for the store-side atomicity redis provides.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string]entry)}
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		delete(s.items, key)
		return nil, storage.ErrKeyNotFound
	}
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, nil
}

func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.items[key] = entry{value: stored, expiresAt: expiresAt}
	return nil
}

func (s *Store) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) || !bytes.Equal(e.value, expected) {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}
