package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and local
// development, following the map+mutex shape of
// serroba-online-docs's MemoryStore.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, docID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[docID]
	if !ok {
		return Record{}, ErrNotFound
	}

	return rec, nil
}

func (m *MemoryStore) UpsertByID(_ context.Context, docID string, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[docID] = rec

	return nil
}

func (m *MemoryStore) Create(_ context.Context, rec Record) (string, error) {
	docID := uuid.NewString()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[docID] = rec

	return docID, nil
}

var _ Store = (*MemoryStore)(nil)
