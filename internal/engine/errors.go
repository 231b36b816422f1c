package engine

import "errors"

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateParse — тело шаблона не распарсилось.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — рендеринг шаблона не удался.
	ErrTemplateRender = errors.New("template render failed")
)

// Ошибки валидации pipeline (только время регистрации,
// никогда не всплывают при обработке документов).
var (
	// ErrEmptyNodes — pipeline не содержит узлов.
	ErrEmptyNodes = errors.New("pipeline spec has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownAction — неизвестный тип действия узла.
	ErrUnknownAction = errors.New("unknown action kind")

	// ErrUnboundInput — входное поле узла не производится ни
	// ingestion-схемой, ни более ранним узлом.
	ErrUnboundInput = errors.New("input field has no producer")

	// ErrProtectedOutput — узел объявляет выходным полем поле
	// идентичности документа.
	ErrProtectedOutput = errors.New("output field is protected")

	// ErrDuplicateOutput — поле производится более чем одним узлом
	// (или уже есть в ingestion-схеме).
	ErrDuplicateOutput = errors.New("output field already produced")

	// ErrEmptyOutputs — узел не объявляет выходных полей.
	ErrEmptyOutputs = errors.New("node has no output fields")

	// ErrTemplateNotFound — узел ссылается на несуществующий шаблон.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUndeclaredTemplateField — шаблон узла ссылается на поле,
	// не объявленное во входных полях узла.
	ErrUndeclaredTemplateField = errors.New("template references undeclared field")

	// ErrBadRetryPolicy — некорректная политика retry.
	ErrBadRetryPolicy = errors.New("invalid retry policy")
)

// MissingFieldError — плейсхолдер шаблона ссылается на поле,
// отсутствующее в документе.
//
// Это permanent класс ошибки: повторное выполнение не породит поле,
// которое upstream не произвёл.
type MissingFieldError struct {
	// Field — имя отсутствующего поля.
	Field string
}

// Error реализует интерфейс error.
func (e *MissingFieldError) Error() string {
	return "missing field: " + e.Field
}

// ValidationError — ошибка валидации с контекстом узла.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
