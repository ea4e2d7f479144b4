package datastore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by components
// that want a scratch store without external infrastructure.
type MemoryStore struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hashes: make(map[string]map[string]string)}
}

func (s *MemoryStore) HSet(ctx context.Context, table, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreUnavailable
	}
	name := table + ":" + key
	if s.hashes[name] == nil {
		s.hashes[name] = make(map[string]string)
	}
	s.hashes[name][field] = value
	return nil
}

func (s *MemoryStore) HGet(ctx context.Context, table, key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrStoreUnavailable
	}
	value, ok := s.hashes[table+":"+key][field]
	return value, ok, nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, table, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreUnavailable
	}
	fields := make(map[string]string)
	for field, value := range s.hashes[table+":"+key] {
		fields[field] = value
	}
	return fields, nil
}

func (s *MemoryStore) HDel(ctx context.Context, table, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreUnavailable
	}
	delete(s.hashes[table+":"+key], field)
	return nil
}

func (s *MemoryStore) HKeys(ctx context.Context, table, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreUnavailable
	}
	var fields []string
	for field := range s.hashes[table+":"+key] {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreUnavailable
	}
	return nil
}

// Close marks the store unavailable. Tests use this to exercise
// StoreUnavailable handling.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
