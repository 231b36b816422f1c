package coordinator

import (
	"time"

	"github.com/shaiso/Loom/internal/dispatch"
	"github.com/shaiso/Loom/internal/domain"
)

// Outcome — исход обработки одной доставки.
type Outcome int

const (
	// OutcomeAdvance — узел выполнен, документ продвигается к следующему.
	OutcomeAdvance Outcome = iota

	// OutcomeComplete — выполнен последний узел, прохождение завершено.
	OutcomeComplete

	// OutcomeRetry — временная ошибка, тот же узел будет повторён
	// с задержкой.
	OutcomeRetry

	// OutcomeFail — прохождение завершается со статусом FAILED.
	OutcomeFail
)

// String возвращает имя исхода для логов.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdvance:
		return "advance"
	case OutcomeComplete:
		return "complete"
	case OutcomeRetry:
		return "retry"
	case OutcomeFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decision — решение по результату вызова узла.
type Decision struct {
	// Outcome — исход.
	Outcome Outcome

	// Next — task для следующего узла (OutcomeAdvance).
	Next *domain.Task

	// Retry — повторный task того же узла (OutcomeRetry).
	Retry *domain.Task

	// Delay — задержка перед повторной доставкой (OutcomeRetry).
	Delay time.Duration
}

// Decide превращает результат вызова узла в решение о дальнейшем
// движении документа и мутирует state соответствующим образом.
//
// Функция детерминирована и не делает IO: состояние, спецификация,
// результат вызова и текущее время полностью определяют решение.
// Запись состояния и постановка tasks — обязанность вызывающего,
// причём строго в этом порядке: состояние коммитится до enqueue.
func Decide(state *domain.RunState, spec *domain.PipelineSpec, outputs map[string]any, invErr error, now time.Time) Decision {
	node := &spec.Nodes[state.Cursor]

	if invErr == nil {
		state.Advance(outputs)

		if state.Cursor >= len(spec.Nodes) {
			state.MarkSucceeded()
			return Decision{Outcome: OutcomeComplete}
		}

		next := domain.NewTask(state, state.Cursor, 0, now)
		return Decision{Outcome: OutcomeAdvance, Next: next}
	}

	if dispatch.IsPermanent(invErr) {
		state.MarkFailed(domain.FailurePermanent, invErr.Error())
		return Decision{Outcome: OutcomeFail}
	}

	// Временная ошибка: попытка выполнена, считаем её.
	state.Attempt++
	state.LastError = invErr.Error()

	policy := spec.RetryPolicyFor(node)
	if state.Attempt >= policy.MaxAttempts {
		state.MarkFailed(domain.FailureRetryExhausted, invErr.Error())
		return Decision{Outcome: OutcomeFail}
	}

	delay := backoffDelay(state.Attempt, &policy)
	// not_before фиксируется в состоянии: до его истечения прохождение
	// припарковано, а не потеряно, и poll его не трогает
	state.NextAttemptAt = now.Add(delay)
	retry := domain.NewTask(state, state.Cursor, state.Attempt, state.NextAttemptAt)
	return Decision{Outcome: OutcomeRetry, Retry: retry, Delay: delay}
}

// IsStale сообщает, отстал ли task от состояния.
//
// Доставка отбрасывается, если прохождение уже терминально, если
// cursor ушёл вперёд (узел уже выполнен) или если попытка task уже
// учтена. At-least-once очередь делает такие дубликаты штатными.
func IsStale(state *domain.RunState, task *domain.Task) bool {
	if state.IsTerminal() {
		return true
	}
	if task.NodeIndex != state.Cursor {
		return true
	}
	if task.Attempt < state.Attempt {
		return true
	}
	return false
}

// backoffDelay вычисляет задержку перед повторной попыткой.
// attempt — число уже выполненных попыток (>= 1).
func backoffDelay(attempt int, policy *domain.RetryPolicy) time.Duration {
	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var delay time.Duration
	switch policy.Backoff {
	case "exponential":
		// delay = initialDelay * 2^(attempt-1)
		delay = initialDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	default:
		// "fixed" или пусто
		delay = initialDelay
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
