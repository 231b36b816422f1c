package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// MockEmbedAction — детерминированная замена EmbedAction для тестов и
// локальной разработки: вектор выводится из хэша инструкции, без
// обращения к сервису моделей.
type MockEmbedAction struct {
	// Dim — размерность вектора.
	Dim int
}

// Execute строит псевдовектор из инструкции.
func (a *MockEmbedAction) Execute(_ context.Context, inv *Invocation) (map[string]any, error) {
	if len(inv.Node.OutputFields) != 1 {
		return nil, Permanentf("model_embed node %s must declare exactly one output field, got %d",
			inv.Node.ID, len(inv.Node.OutputFields))
	}

	dim := a.Dim
	if dim <= 0 {
		dim = 8
	}

	h := fnv.New32a()
	h.Write([]byte(inv.Rendered))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := range vector {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000) / 1000
	}

	return map[string]any{inv.Node.OutputFields[0]: vector}, nil
}

// MockCompleteAction — детерминированная замена CompleteAction:
// каждое объявленное выходное поле заполняется строкой, выведенной
// из хэша инструкции.
type MockCompleteAction struct{}

// Execute заполняет объявленные выходные поля псевдозначениями.
func (a *MockCompleteAction) Execute(_ context.Context, inv *Invocation) (map[string]any, error) {
	h := fnv.New32a()
	h.Write([]byte(inv.Rendered))
	seed := h.Sum32()

	outputs := make(map[string]any, len(inv.Node.OutputFields))
	for _, field := range inv.Node.OutputFields {
		seed = seed*1664525 + 1013904223
		outputs[field] = fmt.Sprintf("mock-%s-%04d", field, seed%10000)
	}
	return outputs, nil
}

// ScriptedAction — action с заранее заданной последовательностью
// ответов. Используется в тестах координатора для моделирования
// transient и permanent сбоев.
type ScriptedAction struct {
	mu      sync.Mutex
	replies []ScriptedReply
	calls   int
}

// ScriptedReply — один ответ ScriptedAction.
type ScriptedReply struct {
	Outputs map[string]any
	Err     error
}

// NewScriptedAction создаёт action, возвращающий replies по порядку.
// Когда replies исчерпаны, повторяется последний.
func NewScriptedAction(replies ...ScriptedReply) *ScriptedAction {
	return &ScriptedAction{replies: replies}
}

// Execute возвращает следующий запрограммированный ответ.
func (a *ScriptedAction) Execute(_ context.Context, _ *Invocation) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.calls
	if idx >= len(a.replies) {
		idx = len(a.replies) - 1
	}
	a.calls++

	reply := a.replies[idx]
	return reply.Outputs, reply.Err
}

// Calls возвращает количество вызовов.
func (a *ScriptedAction) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
