package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/repo"
)

// cancelRetries — попытки CAS при отмене прохождения.
const cancelRetries = 3

// GetRun возвращает состояние прохождения документа.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid doc id")
		return
	}

	state, err := h.runRepo.Get(r.Context(), docID)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunStateFromDomain(state))
}

// CancelRun отменяет прохождение документа.
// POST /api/v1/runs/{id}/cancel
//
// Отмена соревнуется с координатором за одно и то же состояние, поэтому
// идёт через тот же CAS: проигранная гонка перечитывает состояние и
// повторяет. Уже доставленный task обнаружит терминальный статус и
// будет отброшен без выполнения узла.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid doc id")
		return
	}

	var state *domain.RunState
	for attempt := 0; attempt < cancelRetries; attempt++ {
		state, err = h.runRepo.Get(r.Context(), docID)
		if HandleRepoError(w, h.logger, err, "run not found") {
			return
		}

		if state.IsTerminal() {
			InvalidState(w, "run is already finished")
			return
		}

		state.MarkFailed(domain.FailureCancelled, "cancelled by user")

		err = h.runRepo.UpdateCAS(r.Context(), state)
		if err == nil {
			Success(w, RunStateFromDomain(state))
			return
		}
		if !errors.Is(err, repo.ErrConflict) {
			InternalError(w, h.logger, err)
			return
		}
	}

	Conflict(w, "run state changed concurrently, retry")
}

// GetDocument возвращает готовый документ из хранилища.
// GET /api/v1/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid doc id")
		return
	}

	doc, err := h.documents.Get(r.Context(), docID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			NotFound(w, "document not found")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, DocumentFromDomain(doc))
}
