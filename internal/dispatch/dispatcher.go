package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Loom/internal/domain"
)

// Dispatcher выполняет узлы pipeline через зарегистрированные actions.
//
// Диспетчер отвечает за рамку вызова: таймаут узла, идемпотентный
// token, классификацию ошибок и проверку выходного контракта.
// Семантика самого вызова живёт в Action.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Registry — реестр actions (обязателен).
	Registry *Registry

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		logger:   logger,
	}
}

// InvocationToken строит идемпотентный ключ вызова.
//
// Ключ детерминирован для пары (документ, узел) в рамках попытки:
// дубликат доставки того же task предъявит тот же token, и эффектный
// бэкенд может дедуплицировать повтор.
func InvocationToken(state *domain.RunState, nodeIndex, attempt int) string {
	return fmt.Sprintf("%s:%d:%d", state.DocID, nodeIndex, attempt)
}

// Invoke выполняет узел для документа.
//
// Возвращаемая ошибка всегда классифицирована: TransientError или
// PermanentError. Успешный результат гарантированно покрывает ровно
// OutputFields узла.
func (d *Dispatcher) Invoke(ctx context.Context, inv *Invocation) (map[string]any, error) {
	action, err := d.registry.Get(inv.Node.Action)
	if err != nil {
		// Валидация при регистрации не пропускает неизвестные виды;
		// сюда попадает только рассинхронизация конфигурации воркера
		return nil, Permanent(err)
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outputs, err := action.Execute(ctx, inv)
	elapsed := time.Since(start)

	if err != nil {
		err = Classify(err)
		d.logger.Debug("invocation failed",
			"token", inv.Token,
			"node_id", inv.Node.ID,
			"action", inv.Node.Action,
			"transient", IsTransient(err),
			"elapsed", elapsed,
			"error", err,
		)
		return nil, err
	}

	if err := checkOutputContract(inv.Node, outputs); err != nil {
		return nil, Permanent(err)
	}

	d.logger.Debug("invocation succeeded",
		"token", inv.Token,
		"node_id", inv.Node.ID,
		"action", inv.Node.Action,
		"elapsed", elapsed,
	)
	return outputs, nil
}

// checkOutputContract проверяет, что outputs покрывают ровно
// OutputFields узла: ни недостающих, ни лишних ключей.
func checkOutputContract(node *domain.NodeDef, outputs map[string]any) error {
	declared := make(map[string]bool, len(node.OutputFields))
	for _, field := range node.OutputFields {
		declared[field] = true
		if _, ok := outputs[field]; !ok {
			return fmt.Errorf("%w: node %s produced no output %q", ErrOutputContract, node.ID, field)
		}
	}
	for key := range outputs {
		if !declared[key] {
			return fmt.Errorf("%w: node %s produced undeclared output %q", ErrOutputContract, node.ID, key)
		}
	}
	return nil
}
