package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
)

// Store — приёмник готовых документов.
//
// Save обязан быть идемпотентным по doc_id: очередь доставляет
// at-least-once, и успешно обработанный узел storage_write может быть
// выполнен повторно до того, как его результат закоммичен.
type Store interface {
	// Save сохраняет документ, перезаписывая предыдущую запись с тем
	// же doc_id.
	Save(ctx context.Context, doc *domain.Document) error

	// Get возвращает сохранённый документ.
	Get(ctx context.Context, docID uuid.UUID) (*domain.Document, error)
}
