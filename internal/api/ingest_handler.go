package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/ingest"
)

// IngestDocuments принимает батч документов в pipeline.
// POST /api/v1/pipelines/{id}/documents
//
// Возвращает 202 с Receipt: по-документные отказы не откатывают
// принятые документы, клиент разбирает receipt сам.
func (h *Handler) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	receipt, err := h.ingestor.Ingest(r.Context(), id, req.Payloads)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNoPayloads):
			BadRequest(w, err.Error())
		case errors.Is(err, ingest.ErrPipelineNotFound):
			NotFound(w, err.Error())
		case errors.Is(err, ingest.ErrPipelineInactive),
			errors.Is(err, ingest.ErrNoVersions):
			InvalidState(w, err.Error())
		default:
			InternalError(w, h.logger, err)
		}
		return
	}

	Accepted(w, receipt)
}
