package domain

// RunStatus — статус прохождения документа через pipeline.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//
// RUNNING может повторяться через retry одного и того же узла,
// пока не исчерпаны попытки.
type RunStatus string

const (
	// RunStatusPending — документ принят, первый узел ещё не обрабатывался.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — документ проходит через узлы pipeline.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все узлы выполнены, документ передан в хранилище.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — обработка прервана (permanent ошибка, исчерпание
	// retry или отмена пользователем).
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}

// FailureKind — класс ошибки, записанный в RunState.
//
// Различает permanent ошибки и исчерпание retry: оба ведут в FAILED,
// но причина должна оставаться различимой при инспекции.
type FailureKind string

const (
	// FailureNone — ошибки нет.
	FailureNone FailureKind = ""

	// FailurePermanent — невосстановимая ошибка (плохой биндинг шаблона,
	// нарушение контракта выходных полей, отклонённый вход action).
	FailurePermanent FailureKind = "PERMANENT"

	// FailureRetryExhausted — transient ошибки повторялись до исчерпания
	// retry_policy.max_attempts.
	FailureRetryExhausted FailureKind = "RETRY_EXHAUSTED"

	// FailureCancelled — обработка отменена пользователем.
	FailureCancelled FailureKind = "CANCELLED"
)
