package course

import (
	"context"
	"sync"
)

// Repository persists course records keyed by user ID.
type Repository interface {
	LoadAll(ctx context.Context) (map[string]Record, error)
	Upsert(ctx context.Context, rec Record) error
}

// MemoryRepository is an in-memory Repository for development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	upserts int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (m *MemoryRepository) LoadAll(_ context.Context) (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v.Clone()
	}
	return out, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = rec.Clone()
	m.upserts++
	return nil
}

// Upserts returns how many writes the repository received.
func (m *MemoryRepository) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}
