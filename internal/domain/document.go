package domain

import (
	"time"

	"github.com/google/uuid"
)

// Protected identity fields. Узлы не могут объявлять их выходными
// полями и ingestion-payload не может их переопределить.
const (
	FieldDocID      = "doc_id"
	FieldPipelineID = "pipeline_id"
	FieldCreatedAt  = "created_at"
)

// ProtectedFields — поля идентичности документа.
var ProtectedFields = map[string]bool{
	FieldDocID:      true,
	FieldPipelineID: true,
	FieldCreatedAt:  true,
}

// IsProtectedField возвращает true для полей идентичности документа.
func IsProtectedField(name string) bool {
	return ProtectedFields[name]
}

// Document — финальное отображение полей одного ingested документа.
//
// Во время прохождения pipeline полями владеет RunState; Document
// материализуется только при завершении, когда владение передаётся
// хранилищу.
type Document struct {
	// DocID — уникальный идентификатор документа.
	DocID uuid.UUID `json:"doc_id"`

	// PipelineID — pipeline, через который документ прошёл.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// PipelineVersion — версия pipeline.
	PipelineVersion int `json:"pipeline_version"`

	// Fields — гетерогенное отображение имя→значение (текст, векторы,
	// структурированные записи).
	Fields map[string]any `json:"fields"`

	// CreatedAt — время ingestion.
	CreatedAt time.Time `json:"created_at"`
}
