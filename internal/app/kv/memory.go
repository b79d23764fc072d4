package kv

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. Only watchers in the same process see changes.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	n      *notifier
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		n:      newNotifier(),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.values[key] = bytes.Clone(value)
	s.mu.Unlock()

	s.n.publish(Change{Key: key})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	var removed []string

	s.mu.Lock()
	for _, key := range keys {
		if _, ok := s.values[key]; ok {
			delete(s.values, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()

	for _, key := range removed {
		s.n.publish(Change{Key: key, Deleted: true})
	}
	return nil
}

func (s *MemoryStore) DeleteIfEqual(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	v, ok := s.values[key]
	removed := ok && bytes.Equal(v, expected)
	if removed {
		delete(s.values, key)
	}
	s.mu.Unlock()

	if removed {
		s.n.publish(Change{Key: key, Deleted: true})
	}
	return removed, nil
}

func (s *MemoryStore) Watch(ctx context.Context) <-chan Change {
	return s.n.subscribe(ctx)
}

func (s *MemoryStore) Close() error {
	s.n.close()
	return nil
}
