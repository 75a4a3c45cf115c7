package storage

import (
	"bytes"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a KV held in process memory. It backs ephemeral accounts
// and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ KV = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (s *MemoryStore) Put(key, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	s.data[string(key)] = clone(value)
	return nil
}

func (s *MemoryStore) Delete(key []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data, string(key))
	return nil
}

// ForEach visits a point-in-time copy of the matching entries, so fn may
// write to the store.
func (s *MemoryStore) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	type entry struct{ k, v []byte }
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	var entries []entry
	for k, v := range s.data {
		if strings.HasPrefix(k, string(prefix)) {
			entries = append(entries, entry{[]byte(k), clone(v)})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].k, entries[j].k) < 0 })
	for _, e := range entries {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
