package kv

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store implementation.
// It backs single-node deployments and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string][]byte{}}
}

func scopeKey(store, namespace string) string {
	return store + "\x00" + namespace
}

func (s *MemoryStore) Get(_ context.Context, store, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope, exist := s.data[scopeKey(store, namespace)]
	if !exist {
		return nil, fmt.Errorf("store %s, namespace %s, key %s: %w", store, namespace, key, ErrNotFound)
	}

	val, exist := scope[key]
	if !exist {
		return nil, fmt.Errorf("store %s, namespace %s, key %s: %w", store, namespace, key, ErrNotFound)
	}

	result := make([]byte, len(val))
	copy(result, val)

	return result, nil
}

func (s *MemoryStore) Put(_ context.Context, store, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := scopeKey(store, namespace)

	scope, exist := s.data[sk]
	if !exist {
		scope = map[string][]byte{}
		s.data[sk] = scope
	}

	val := make([]byte, len(value))
	copy(val, value)
	scope[key] = val

	return nil
}

func (s *MemoryStore) GetAll(_ context.Context, store, namespace string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := s.data[scopeKey(store, namespace)]

	result := make(map[string][]byte, len(scope))
	for k, v := range scope {
		val := make([]byte, len(v))
		copy(val, v)
		result[k] = val
	}

	return result, nil
}
