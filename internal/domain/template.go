package domain

import (
	"time"

	"github.com/google/uuid"
)

// Template — версионированный текст шаблона инструкции.
//
// Тело содержит выражения, разрешаемые по полям документа во время
// рендеринга. Версия неизменяема: правки создают новую версию, узлы
// ссылаются на конкретную, поэтому исторические прогоны воспроизводимы.
type Template struct {
	// ID — уникальный идентификатор шаблона (общий для всех версий).
	ID uuid.UUID `json:"id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Name — человекочитаемое имя шаблона.
	Name string `json:"name,omitempty"`

	// Body — текст шаблона с выражениями вида {{ .field }}.
	Body string `json:"body"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}
