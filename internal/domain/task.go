package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — неизменяемое сообщение очереди: "обработай узел NodeIndex
// документа DocID".
//
// Создаётся при ingestion (первый узел) и координатором при
// продвижении cursor или retry. Очередь доставляет его как минимум
// один раз и без гарантии порядка между разными tasks; пара
// (DocID, NodeIndex) служит ключом идемпотентности — координатор
// обязан переварить дубликат доставки без повторного применения
// выходов.
type Task struct {
	// ID — уникальный идентификатор сообщения.
	ID uuid.UUID `json:"id"`

	// DocID — документ, который нужно продвинуть.
	DocID uuid.UUID `json:"doc_id"`

	// PipelineID — pipeline документа (для маршрутизации и логов;
	// источником истины остаётся RunState).
	PipelineID uuid.UUID `json:"pipeline_id"`

	// NodeIndex — индекс узла, который нужно выполнить.
	NodeIndex int `json:"node_index"`

	// Attempt — номер попытки текущего узла (0 для первой).
	Attempt int `json:"attempt"`

	// NotBefore — не доставлять раньше этого времени (backoff retry).
	// Нулевое время — доставлять сразу.
	NotBefore time.Time `json:"not_before,omitempty"`

	// CreatedAt — время создания сообщения.
	CreatedAt time.Time `json:"created_at"`
}

// NewTask создаёт task для узла документа.
func NewTask(state *RunState, nodeIndex, attempt int, notBefore time.Time) *Task {
	return &Task{
		ID:         uuid.New(),
		DocID:      state.DocID,
		PipelineID: state.PipelineID,
		NodeIndex:  nodeIndex,
		Attempt:    attempt,
		NotBefore:  notBefore,
		CreatedAt:  time.Now().UTC(),
	}
}
