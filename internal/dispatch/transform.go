package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// TransformAction выполняет transform узлы: отрендеренная инструкция
// парсится как JSON-объект, ключи которого становятся выходными полями.
//
// Никаких внешних вызовов: всё вычисление происходит в шаблоне.
// Ошибки разбора постоянны: шаблон детерминирован, повтор даст тот же
// текст.
type TransformAction struct{}

// NewTransformAction создаёт TransformAction.
func NewTransformAction() *TransformAction {
	return &TransformAction{}
}

// Execute разбирает инструкцию как JSON-объект.
func (a *TransformAction) Execute(_ context.Context, inv *Invocation) (map[string]any, error) {
	var outputs map[string]any
	if err := json.Unmarshal([]byte(inv.Rendered), &outputs); err != nil {
		return nil, Permanent(fmt.Errorf("%w: node %s: %v", ErrBadInstruction, inv.Node.ID, err))
	}
	if outputs == nil {
		return nil, Permanent(fmt.Errorf("%w: node %s: instruction is not a JSON object", ErrBadInstruction, inv.Node.ID))
	}
	return outputs, nil
}
