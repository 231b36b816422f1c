package store

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/repo"
)

// MemoryStore — внутрипроцессное хранилище документов для тестов.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]domain.Document

	// Saves считает вызовы Save для проверки идемпотентности в тестах.
	saves int
}

// NewMemoryStore создаёт новый MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[uuid.UUID]domain.Document)}
}

// Save сохраняет документ, перезаписывая предыдущую запись.
func (s *MemoryStore) Save(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *doc
	copied.Fields = maps.Clone(doc.Fields)
	s.docs[doc.DocID] = copied
	s.saves++
	return nil
}

// Get возвращает сохранённый документ.
func (s *MemoryStore) Get(_ context.Context, docID uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := doc
	copied.Fields = maps.Clone(doc.Fields)
	return &copied, nil
}

// Len возвращает количество сохранённых документов.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// SaveCount возвращает количество вызовов Save.
func (s *MemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
