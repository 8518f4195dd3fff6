package history

import "sync"

// MemoryBlobStore is an in-memory BlobStore for tests and ephemeral use.
// It holds defensive copies so callers cannot mutate stored payloads.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[string][]byte),
	}
}

// Open is a no-op; memory is always available.
func (s *MemoryBlobStore) Open() error { return nil }

// Put stores a copy of the payload under id.
func (s *MemoryBlobStore) Put(id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.blobs[id] = buf
	return nil
}

// Get returns a copy of the payload stored under id.
func (s *MemoryBlobStore) Get(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.blobs[id]
	if !ok {
		return nil, ErrBlobNotFound
	}
	buf := make([]byte, len(stored))
	copy(buf, stored)
	return buf, nil
}

// Delete removes the payload stored under id, if any.
func (s *MemoryBlobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, id)
	return nil
}

// Size returns the total bytes held by the store.
func (s *MemoryBlobStore) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, payload := range s.blobs {
		total += int64(len(payload))
	}
	return total, nil
}

// Close is a no-op.
func (s *MemoryBlobStore) Close() error { return nil }

// Len returns the number of stored blobs.
func (s *MemoryBlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.blobs)
}
