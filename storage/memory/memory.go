// Package memory provides a thread-safe in-memory implementation of storage.TokenStore.
package memory

import (
	"sync"

	"github.com/occasio/occasio/storage"
)

// Store is a thread-safe in-memory TokenStore. Suitable for testing, demos,
// and one-shot processes that do not need to survive a restart.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ storage.TokenStore = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.data, k)
	}
	s.mu.Unlock()
	return nil
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
