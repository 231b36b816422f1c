package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

// Invocation — один вызов узла для конкретного документа.
type Invocation struct {
	// Token — идемпотентный ключ вызова: doc_id, позиция узла и номер
	// попытки. Эффектные actions используют его для дедупликации.
	Token string

	// Doc — текущий снимок документа (doc_id и накопленные поля).
	Doc *domain.Document

	// Node — определение узла из версии pipeline.
	Node *domain.NodeDef

	// Rendered — отрендеренная инструкция узла (тело шаблона после
	// подстановки полей). Пустая строка для узлов без шаблона.
	Rendered string

	// Inputs — входные поля узла, выбранные из документа.
	Inputs map[string]any

	// Timeout — действующий таймаут внешнего вызова (узел → defaults).
	Timeout time.Duration
}

// Action выполняет узел одного вида.
//
// Возвращённые outputs должны покрывать ровно OutputFields узла;
// диспетчер проверяет контракт и превращает расхождение в
// PermanentError. Ошибки классифицируются через Transient/Permanent,
// неклассифицированные считаются временными.
type Action interface {
	Execute(ctx context.Context, inv *Invocation) (map[string]any, error)
}

// Registry — реестр actions по виду узла.
type Registry struct {
	actions map[domain.ActionKind]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[domain.ActionKind]Action)}
}

// Register добавляет action для вида узла.
func (r *Registry) Register(kind domain.ActionKind, action Action) {
	r.actions[kind] = action
}

// Get возвращает action для вида узла.
func (r *Registry) Get(kind domain.ActionKind) (Action, error) {
	action, ok := r.actions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, kind)
	}
	return action, nil
}
