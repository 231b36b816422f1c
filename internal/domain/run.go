package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunState — изменяемое состояние прохождения одного документа
// через pipeline.
//
// Создаётся при ingestion (cursor=0, статус PENDING), мутируется
// только координатором, архивируется при достижении терминального
// статуса. Это единственный разделяемый изменяемый ресурс движка:
// все записи идут через одну атомарную read-modify-write операцию
// по ключу doc_id (optimistic concurrency через Revision).
type RunState struct {
	// DocID — идентификатор документа (ключ состояния).
	DocID uuid.UUID `json:"doc_id"`

	// PipelineID — pipeline, через который идёт документ.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// PipelineVersion — зафиксированная при ingestion версия.
	// Публикация новой версии не влияет на in-flight документы.
	PipelineVersion int `json:"pipeline_version"`

	// Cursor — индекс следующего узла.
	Cursor int `json:"cursor"`

	// Fields — накапливающееся отображение полей: входной payload
	// плюс выходы завершённых узлов.
	Fields map[string]any `json:"fields"`

	// Status — текущий статус.
	Status RunStatus `json:"status"`

	// Attempt — число выполненных попыток текущего узла.
	// Сбрасывается в 0 при продвижении cursor.
	Attempt int `json:"attempt"`

	// LastError — текст последней ошибки.
	LastError string `json:"last_error,omitempty"`

	// NextAttemptAt — not_before запланированного retry. Пока оно в
	// будущем, прохождение не потеряно, а припарковано на backoff:
	// polling fallback не должен переставлять его task. Сбрасывается
	// при продвижении cursor.
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`

	// FailureKind — класс ошибки, приведшей в FAILED.
	FailureKind FailureKind `json:"failure_kind,omitempty"`

	// Revision — счётчик версий записи для optimistic concurrency.
	// Конфликтующая конкурентная запись заставляет одного из писателей
	// перечитать состояние, а не молча затереть чужую запись.
	Revision int64 `json:"revision"`

	// CreatedAt — время ingestion.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRunState создаёт состояние для только что принятого документа.
func NewRunState(docID uuid.UUID, version *PipelineVersion, payload map[string]any) *RunState {
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v
	}

	now := time.Now().UTC()
	return &RunState{
		DocID:           docID,
		PipelineID:      version.PipelineID,
		PipelineVersion: version.Version,
		Cursor:          0,
		Fields:          fields,
		Status:          RunStatusPending,
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsTerminal возвращает true, если прохождение завершено.
func (s *RunState) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// MarkRunning переводит состояние из PENDING в RUNNING.
func (s *RunState) MarkRunning() {
	if s.Status == RunStatusPending {
		s.Status = RunStatusRunning
	}
}

// Advance вливает выходные поля узла и сдвигает cursor.
// Счётчик попыток сбрасывается: он относится к текущему узлу.
func (s *RunState) Advance(outputs map[string]any) {
	for k, v := range outputs {
		s.Fields[k] = v
	}
	s.Cursor++
	s.Attempt = 0
	s.LastError = ""
	s.NextAttemptAt = time.Time{}
}

// MarkSucceeded фиксирует успешное завершение pipeline.
func (s *RunState) MarkSucceeded() {
	s.Status = RunStatusSucceeded
	s.LastError = ""
	s.FailureKind = FailureNone
}

// MarkFailed фиксирует терминальную ошибку с её классом.
func (s *RunState) MarkFailed(kind FailureKind, errMsg string) {
	s.Status = RunStatusFailed
	s.FailureKind = kind
	s.LastError = errMsg
}

// Document материализует финальный документ для передачи хранилищу.
func (s *RunState) Document() *Document {
	return &Document{
		DocID:           s.DocID,
		PipelineID:      s.PipelineID,
		PipelineVersion: s.PipelineVersion,
		Fields:          s.Fields,
		CreatedAt:       s.CreatedAt,
	}
}
