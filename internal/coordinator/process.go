package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Loom/internal/dispatch"
	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/engine"
	"github.com/shaiso/Loom/internal/metrics"
	"github.com/shaiso/Loom/internal/repo"
)

// Process обрабатывает одну доставку task.
//
// Возврат nil означает, что исход доставки решён (включая отброшенные
// дубликаты); сообщение можно подтверждать. Ошибка — инфраструктурный
// сбой до коммита состояния, сообщение должно вернуться в очередь.
//
// Порядок эффектов фиксирован: вызов узла → запись документа (для
// последнего узла) → коммит состояния → постановка следующего task.
// Падение между коммитом и постановкой лечится polling fallback, а
// не откатом: состояние никогда не двигается назад.
func (c *Coordinator) Process(ctx context.Context, task *domain.Task) error {
	state, err := c.runs.Get(ctx, task.DocID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Состояние архивировано или не создано — доставке некуда
			// примениться
			c.logger.Warn("run state not found, dropping task",
				"doc_id", task.DocID,
				"node_index", task.NodeIndex,
			)
			metrics.TasksProcessed.WithLabelValues("stale").Inc()
			return nil
		}
		return fmt.Errorf("get run state: %w", err)
	}

	if IsStale(state, task) {
		c.logger.Debug("dropping stale task",
			"doc_id", task.DocID,
			"node_index", task.NodeIndex,
			"task_attempt", task.Attempt,
			"cursor", state.Cursor,
			"status", state.Status,
		)
		metrics.TasksProcessed.WithLabelValues("stale").Inc()
		return nil
	}

	version, err := c.defs.PipelineVersion(ctx, state.PipelineID, state.PipelineVersion)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c.failPermanent(ctx, state,
				fmt.Sprintf("%v: %s v%d", ErrVersionNotFound, state.PipelineID, state.PipelineVersion))
		}
		return fmt.Errorf("get pipeline version: %w", err)
	}
	spec := &version.Spec

	if state.Cursor >= len(spec.Nodes) {
		return c.failPermanent(ctx, state,
			fmt.Sprintf("%v: cursor %d, nodes %d", ErrCursorOutOfRange, state.Cursor, len(spec.Nodes)))
	}
	node := &spec.Nodes[state.Cursor]

	// Первый узел: PENDING → RUNNING, видимое снаружи до вызова.
	if state.Status == domain.RunStatusPending {
		state.MarkRunning()
		if err := c.persist(ctx, state); err != nil {
			return c.settle(err)
		}
	}

	outputs, invErr := c.invokeNode(ctx, state, spec, node, task)

	decision := Decide(state, spec, outputs, invErr, time.Now().UTC())

	c.logger.Info("task processed",
		"doc_id", state.DocID,
		"node_id", node.ID,
		"node_index", task.NodeIndex,
		"attempt", task.Attempt,
		"outcome", decision.Outcome,
	)

	switch decision.Outcome {
	case OutcomeComplete:
		// Документ уходит в хранилище до коммита SUCCEEDED: падение
		// между ними приводит к повторной записи того же снимка, а не
		// к SUCCEEDED без документа
		if err := c.documents.Save(ctx, state.Document()); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		if err := c.persist(ctx, state); err != nil {
			return c.settle(err)
		}
		metrics.TasksProcessed.WithLabelValues("complete").Inc()
		metrics.RunsFinished.WithLabelValues(string(state.Status)).Inc()
		c.logger.Info("run succeeded",
			"doc_id", state.DocID,
			"pipeline_id", state.PipelineID,
			"nodes", len(spec.Nodes),
		)
		return nil

	case OutcomeAdvance:
		if err := c.persist(ctx, state); err != nil {
			return c.settle(err)
		}
		c.enqueue(ctx, decision.Next, time.Time{})
		metrics.TasksProcessed.WithLabelValues("advance").Inc()
		return nil

	case OutcomeRetry:
		if err := c.persist(ctx, state); err != nil {
			return c.settle(err)
		}
		c.enqueue(ctx, decision.Retry, decision.Retry.NotBefore)
		metrics.TasksProcessed.WithLabelValues("retry").Inc()
		c.logger.Warn("node failed, retrying",
			"doc_id", state.DocID,
			"node_id", node.ID,
			"attempt", state.Attempt,
			"delay", decision.Delay,
			"error", state.LastError,
		)
		return nil

	case OutcomeFail:
		if err := c.persist(ctx, state); err != nil {
			return c.settle(err)
		}
		metrics.TasksProcessed.WithLabelValues("fail").Inc()
		metrics.RunsFinished.WithLabelValues(string(state.Status)).Inc()
		c.logger.Warn("run failed",
			"doc_id", state.DocID,
			"node_id", node.ID,
			"failure_kind", state.FailureKind,
			"error", state.LastError,
		)
		return nil
	}

	return fmt.Errorf("unhandled outcome %v", decision.Outcome)
}

// invokeNode рендерит инструкцию узла и выполняет её.
// Возвращаемая ошибка классифицирована (TransientError/PermanentError).
func (c *Coordinator) invokeNode(ctx context.Context, state *domain.RunState, spec *domain.PipelineSpec, node *domain.NodeDef, task *domain.Task) (map[string]any, error) {
	tpl, err := c.defs.Template(ctx, node.TemplateID, node.TemplateVersion)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, dispatch.Permanent(err)
		}
		// БД недоступна — штатный transient
		return nil, dispatch.Transient(err)
	}

	inputs := make(map[string]any, len(node.InputFields))
	for _, in := range node.InputFields {
		value, ok := state.Fields[in]
		if !ok {
			// Валидация регистрации гарантирует producer для каждого
			// входа; отсутствие поля — нарушение контракта узла выше
			return nil, dispatch.Permanent(&engine.MissingFieldError{Field: in})
		}
		inputs[in] = value
	}

	rendered, err := engine.Render(tpl.Body, inputs)
	if err != nil {
		// Шаблон и поля детерминированы, повтор даст тот же результат
		return nil, dispatch.Permanent(err)
	}

	inv := &dispatch.Invocation{
		Token:    dispatch.InvocationToken(state, state.Cursor, task.Attempt),
		Doc:      state.Document(),
		Node:     node,
		Rendered: rendered,
		Inputs:   inputs,
		Timeout:  spec.TimeoutFor(node),
	}

	start := time.Now()
	outputs, invErr := c.invoker.Invoke(ctx, inv)
	metrics.ObserveInvocation(string(node.Action), time.Since(start))

	return outputs, invErr
}

// failPermanent завершает прохождение с постоянной ошибкой вне вызова
// узла (потерянная версия, повреждённый cursor).
func (c *Coordinator) failPermanent(ctx context.Context, state *domain.RunState, errMsg string) error {
	state.MarkFailed(domain.FailurePermanent, errMsg)
	if err := c.persist(ctx, state); err != nil {
		return c.settle(err)
	}

	metrics.TasksProcessed.WithLabelValues("fail").Inc()
	metrics.RunsFinished.WithLabelValues(string(state.Status)).Inc()
	c.logger.Warn("run failed",
		"doc_id", state.DocID,
		"failure_kind", state.FailureKind,
		"error", errMsg,
	)
	return nil
}

// persist коммитит состояние через CAS-запись.
// Проигранная гонка превращается в ErrStaleTask: конкурирующий
// писатель уже учёл эту доставку или ушёл дальше.
func (c *Coordinator) persist(ctx context.Context, state *domain.RunState) error {
	err := c.runs.UpdateCAS(ctx, state)
	if errors.Is(err, repo.ErrConflict) {
		metrics.RevisionConflicts.Inc()
		c.logger.Debug("lost revision race, dropping delivery",
			"doc_id", state.DocID,
			"revision", state.Revision,
		)
		return ErrStaleTask
	}
	if err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}
	return nil
}

// settle переводит исход persist в исход доставки: устаревшие
// доставки подтверждаются, инфраструктурные сбои возвращают сообщение
// в очередь.
func (c *Coordinator) settle(err error) error {
	if errors.Is(err, ErrStaleTask) {
		metrics.TasksProcessed.WithLabelValues("stale").Inc()
		return nil
	}
	return err
}

// enqueue публикует производный task. Ошибка не фатальна: состояние
// уже закоммичено, потерянную постановку восстановит polling fallback.
func (c *Coordinator) enqueue(ctx context.Context, task *domain.Task, notBefore time.Time) {
	if err := c.tasks.Enqueue(ctx, task, notBefore); err != nil {
		c.logger.Warn("failed to enqueue task, poll fallback will recover",
			"doc_id", task.DocID,
			"node_index", task.NodeIndex,
			"error", err,
		)
	}
}
