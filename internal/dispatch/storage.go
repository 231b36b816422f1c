package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/store"
)

// StorageAction выполняет storage_write узлы: входные поля узла
// сохраняются в хранилище документов как снимок под doc_id.
//
// Save идемпотентен по doc_id, поэтому повторная доставка того же task
// безопасно перезапишет тот же снимок. Единственное выходное поле узла
// получает время записи.
type StorageAction struct {
	store store.Store
}

// NewStorageAction создаёт StorageAction.
func NewStorageAction(s store.Store) *StorageAction {
	return &StorageAction{store: s}
}

// Execute сохраняет входные поля узла в хранилище.
func (a *StorageAction) Execute(ctx context.Context, inv *Invocation) (map[string]any, error) {
	if len(inv.Node.OutputFields) != 1 {
		return nil, Permanentf("storage_write node %s must declare exactly one output field, got %d",
			inv.Node.ID, len(inv.Node.OutputFields))
	}

	fields := make(map[string]any, len(inv.Node.InputFields))
	for _, in := range inv.Node.InputFields {
		fields[in] = inv.Inputs[in]
	}

	doc := &domain.Document{
		DocID:           inv.Doc.DocID,
		PipelineID:      inv.Doc.PipelineID,
		PipelineVersion: inv.Doc.PipelineVersion,
		Fields:          fields,
		CreatedAt:       inv.Doc.CreatedAt,
	}

	if err := a.store.Save(ctx, doc); err != nil {
		return nil, Transient(fmt.Errorf("store document: %w", err))
	}

	return map[string]any{
		inv.Node.OutputFields[0]: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
