package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/engine"
)

// ListPipelines возвращает список всех pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelineRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p)
	}

	List(w, result, len(result))
}

// CreatePipeline создаёт новый pipeline.
// POST /api/v1/pipelines
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	pipeline := &domain.Pipeline{
		ID:        uuid.New(),
		Name:      req.Name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.pipelineRepo.Create(r.Context(), pipeline); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, PipelineFromDomain(*pipeline))
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	pipeline, err := h.pipelineRepo.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// SetPipelineActive включает или выключает приём документов.
// PUT /api/v1/pipelines/{id}/active
//
// Выключение не трогает in-flight документы: они дойдут до конца
// своей зафиксированной версии.
func (h *Handler) SetPipelineActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.pipelineRepo.SetActive(r.Context(), id, req.IsActive); err != nil {
		HandleRepoError(w, h.logger, err, "pipeline not found")
		return
	}

	pipeline, err := h.pipelineRepo.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDomain(*pipeline))
}

// CreatePipelineVersion публикует новую версию спецификации.
// POST /api/v1/pipelines/{id}/versions
//
// Спецификация валидируется целиком до сохранения: producer/consumer
// цепочка полей, ссылки на шаблоны, политики retry. Некорректная
// спецификация отклоняется здесь и никогда не всплывает как
// per-document ошибка во время выполнения.
func (h *Handler) CreatePipelineVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req CreatePipelineVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	pipeline, err := h.pipelineRepo.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	lookup := func(templateID uuid.UUID, version int) *domain.Template {
		t, err := h.templateRepo.Get(r.Context(), templateID, version)
		if err != nil {
			return nil
		}
		return t
	}
	if err := engine.Validate(&req.Spec, lookup); err != nil {
		InvalidState(w, err.Error())
		return
	}

	version := &domain.PipelineVersion{
		PipelineID: pipeline.ID,
		Spec:       req.Spec,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.pipelineRepo.CreateVersion(r.Context(), version); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, PipelineVersionFromDomain(*version))
}

// GetPipelineVersion возвращает конкретную версию pipeline.
// GET /api/v1/pipelines/{id}/versions/{version}
func (h *Handler) GetPipelineVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	versionNum, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		BadRequest(w, "invalid version number")
		return
	}

	version, err := h.pipelineRepo.GetVersion(r.Context(), id, versionNum)
	if HandleRepoError(w, h.logger, err, "pipeline version not found") {
		return
	}

	Success(w, PipelineVersionFromDomain(*version))
}

// GetLatestPipelineVersion возвращает последнюю версию pipeline.
// GET /api/v1/pipelines/{id}/versions/latest
func (h *Handler) GetLatestPipelineVersion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	version, err := h.pipelineRepo.GetLatestVersion(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline has no versions") {
		return
	}

	Success(w, PipelineVersionFromDomain(*version))
}
