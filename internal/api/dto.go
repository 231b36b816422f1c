package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
)

// Pipeline DTOs

// CreatePipelineRequest — запрос на создание pipeline.
type CreatePipelineRequest struct {
	Name string `json:"name"`
}

// SetActiveRequest — запрос на включение/выключение приёма документов.
type SetActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
func PipelineFromDomain(p domain.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Name:      p.Name,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}

// PipelineVersion DTOs

// CreatePipelineVersionRequest — запрос на публикацию версии pipeline.
type CreatePipelineVersionRequest struct {
	Spec domain.PipelineSpec `json:"spec"`
}

// PipelineVersionResponse — ответ с версией pipeline.
type PipelineVersionResponse struct {
	PipelineID uuid.UUID           `json:"pipeline_id"`
	Version    int                 `json:"version"`
	Spec       domain.PipelineSpec `json:"spec"`
	CreatedAt  time.Time           `json:"created_at"`
}

// PipelineVersionFromDomain конвертирует domain.PipelineVersion в PipelineVersionResponse.
func PipelineVersionFromDomain(v domain.PipelineVersion) PipelineVersionResponse {
	return PipelineVersionResponse{
		PipelineID: v.PipelineID,
		Version:    v.Version,
		Spec:       v.Spec,
		CreatedAt:  v.CreatedAt,
	}
}

// Template DTOs

// CreateTemplateRequest — запрос на сохранение версии шаблона.
// Пустой ID создаёт новый шаблон; заданный ID добавляет версию
// к существующему.
type CreateTemplateRequest struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
	Body string     `json:"body"`
}

// TemplateResponse — ответ с шаблоном.
type TemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	Version   int       `json:"version"`
	Name      string    `json:"name,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TemplateFromDomain конвертирует domain.Template в TemplateResponse.
func TemplateFromDomain(t domain.Template) TemplateResponse {
	return TemplateResponse{
		ID:        t.ID,
		Version:   t.Version,
		Name:      t.Name,
		Body:      t.Body,
		CreatedAt: t.CreatedAt,
	}
}

// Ingestion DTOs

// IngestRequest — батч документов для приёма в pipeline.
type IngestRequest struct {
	Payloads []map[string]any `json:"payloads"`
}

// Run DTOs

// RunStateResponse — ответ с состоянием прохождения документа.
// Поля документа не включаются: для готового документа есть
// GET /documents/{id}.
type RunStateResponse struct {
	DocID           uuid.UUID `json:"doc_id"`
	PipelineID      uuid.UUID `json:"pipeline_id"`
	PipelineVersion int       `json:"pipeline_version"`
	Cursor          int       `json:"cursor"`
	Status          string    `json:"status"`
	Attempt         int       `json:"attempt"`
	LastError       string    `json:"last_error,omitempty"`
	FailureKind     string    `json:"failure_kind,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunStateFromDomain конвертирует domain.RunState в RunStateResponse.
func RunStateFromDomain(s *domain.RunState) RunStateResponse {
	return RunStateResponse{
		DocID:           s.DocID,
		PipelineID:      s.PipelineID,
		PipelineVersion: s.PipelineVersion,
		Cursor:          s.Cursor,
		Status:          string(s.Status),
		Attempt:         s.Attempt,
		LastError:       s.LastError,
		FailureKind:     string(s.FailureKind),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// DocumentResponse — ответ с готовым документом.
type DocumentResponse struct {
	DocID           uuid.UUID      `json:"doc_id"`
	PipelineID      uuid.UUID      `json:"pipeline_id"`
	PipelineVersion int            `json:"pipeline_version"`
	Fields          map[string]any `json:"fields"`
	CreatedAt       time.Time      `json:"created_at"`
}

// DocumentFromDomain конвертирует domain.Document в DocumentResponse.
func DocumentFromDomain(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		DocID:           d.DocID,
		PipelineID:      d.PipelineID,
		PipelineVersion: d.PipelineVersion,
		Fields:          d.Fields,
		CreatedAt:       d.CreatedAt,
	}
}
