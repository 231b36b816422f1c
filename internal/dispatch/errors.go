package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки диспетчера.
var (
	// ErrUnknownAction — нет action для данного вида узла.
	ErrUnknownAction = errors.New("unknown action kind")

	// ErrTimeout — вызов превысил таймаут узла.
	ErrTimeout = errors.New("invocation timeout")

	// ErrBadInstruction — инструкция transform-узла не разбирается.
	ErrBadInstruction = errors.New("bad transform instruction")

	// ErrOutputContract — outputs вызова не совпадают с декларацией узла.
	ErrOutputContract = errors.New("output contract violation")
)

// TransientError помечает ошибку как временную: та же попытка может
// пройти при повторе, документ остаётся на текущем узле.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError помечает ошибку как постоянную: повтор бессмыслен,
// документ завершается со статусом FAILED.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient оборачивает ошибку как временную.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf оборачивает форматированную ошибку как временную.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// Permanent оборачивает ошибку как постоянную.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf оборачивает форматированную ошибку как постоянную.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent сообщает, является ли ошибка постоянной.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient сообщает, является ли ошибка временной.
//
// Неклассифицированные ошибки считаются временными: сеть, БД и
// таймауты — штатный случай, а ошибочно повторенный permanent-вызов
// ограничен retry-бюджетом узла.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	return true
}

// Classify нормализует ошибку вызова: ошибки контекста становятся
// временными, неклассифицированные ошибки оборачиваются как временные.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	var pe *PermanentError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: fmt.Errorf("%w: %w", ErrTimeout, err)}
	}
	return &TransientError{Err: err}
}
