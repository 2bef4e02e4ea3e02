package store

import (
	"context"
	"sync"

	"gdsim/internal/domain"
)

// MemoryStore keeps the snapshot in process.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *domain.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	snapshot.Transcript = append([]domain.Message(nil), snapshot.Transcript...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
	return nil
}

func (s *MemoryStore) Load(context.Context) (domain.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return domain.Snapshot{}, false, nil
	}
	snapshot := *s.snapshot
	snapshot.Transcript = append([]domain.Message(nil), snapshot.Transcript...)
	return snapshot, true, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
