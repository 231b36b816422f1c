package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict — optimistic concurrency: запись изменена с момента
	// чтения, писатель обязан перечитать состояние и повторить
	// read-modify-write.
	ErrConflict = errors.New("revision conflict")
)
