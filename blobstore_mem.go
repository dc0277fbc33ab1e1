package mlworkflow

import (
	"slices"
	"sync"
)

// MemBlobStore is a transient in-memory BlobStore intended for tests.
type MemBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemBlobStore) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = slices.Clone(data)
	return nil
}

func (s *MemBlobStore) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, keyErrf(name)
	}
	return slices.Clone(data), nil
}

func (s *MemBlobStore) Close() error { return nil }
