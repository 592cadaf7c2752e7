package retriever

import (
	"context"
	"sync"
)

// Document is one stored record: the whole text of a source file plus its
// embedding. The store does not deduplicate; re-ingesting a directory
// appends a second copy of every file (known limitation, callers clear the
// collection first when they want a clean re-ingest).
type Document struct {
	ID        string
	Source    string
	Content   string
	Embedding []float64
}

// Store is the minimal backing-index contract: append documents, scan them
// for nearest-neighbor ranking. Concurrent Query calls are safe; concurrent
// Add calls against the same collection must be serialized by the caller.
type Store interface {
	Add(ctx context.Context, docs []Document) error
	All(ctx context.Context) ([]Document, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps documents in process memory. Used by tests and by
// deployments that skip Postgres; contents do not survive restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Document, len(s.docs))
	copy(cp, s.docs)
	return cp, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	return nil
}
