package coordinator

import "errors"

// Ошибки координатора.
var (
	// ErrStaleTask — task отстал от состояния: cursor ушёл вперёд,
	// попытка уже выполнена или прохождение завершено. Доставка
	// подтверждается и отбрасывается.
	ErrStaleTask = errors.New("stale task")

	// ErrStateNotFound — состояние для doc_id не найдено.
	ErrStateNotFound = errors.New("run state not found")

	// ErrVersionNotFound — версия pipeline, на которую ссылается
	// состояние, не найдена.
	ErrVersionNotFound = errors.New("pipeline version not found")

	// ErrCursorOutOfRange — cursor указывает за пределы последовательности
	// узлов. Повреждённое состояние, прохождение завершается.
	ErrCursorOutOfRange = errors.New("cursor out of range")
)
