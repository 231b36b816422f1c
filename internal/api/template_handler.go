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

// ListTemplates возвращает последние версии всех шаблонов.
// GET /api/v1/templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templateRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]TemplateResponse, len(templates))
	for i, t := range templates {
		result[i] = TemplateFromDomain(t)
	}

	List(w, result, len(result))
}

// CreateTemplate сохраняет новую версию шаблона.
// POST /api/v1/templates
//
// Тело парсится до сохранения: шаблон с синтаксической ошибкой
// отклоняется здесь, а не при первом рендеринге.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Body == "" {
		BadRequest(w, "body is required")
		return
	}
	if _, err := engine.TemplateFields(req.Body); err != nil {
		BadRequest(w, err.Error())
		return
	}

	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}

	template := &domain.Template{
		ID:        id,
		Name:      req.Name,
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.templateRepo.Create(r.Context(), template); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, TemplateFromDomain(*template))
}

// GetTemplate возвращает конкретную версию шаблона.
// GET /api/v1/templates/{id}/versions/{version}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	versionNum, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		BadRequest(w, "invalid version number")
		return
	}

	template, err := h.templateRepo.Get(r.Context(), id, versionNum)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	Success(w, TemplateFromDomain(*template))
}

// GetLatestTemplate возвращает последнюю версию шаблона.
// GET /api/v1/templates/{id}
func (h *Handler) GetLatestTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid template id")
		return
	}

	template, err := h.templateRepo.GetLatest(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "template not found") {
		return
	}

	Success(w, TemplateFromDomain(*template))
}
