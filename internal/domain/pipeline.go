package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionKind — закрытый набор типов действий узла.
//
// Закрытый вариант (вместо открытой динамической диспетчеризации)
// позволяет координатору исчерпывающе обрабатывать классификацию
// ошибок каждого типа.
type ActionKind string

const (
	// ActionModelEmbed — вызов embedding-модели: инструкция → вектор.
	ActionModelEmbed ActionKind = "model_embed"

	// ActionModelComplete — вызов completion-модели: инструкция → JSON-объект
	// с выходными полями.
	ActionModelComplete ActionKind = "model_complete"

	// ActionTransform — чистое преобразование: отрендеренная инструкция
	// парсится как JSON-объект, без внешних вызовов.
	ActionTransform ActionKind = "transform"

	// ActionStorageWrite — явная запись полей в хранилище посреди pipeline.
	ActionStorageWrite ActionKind = "storage_write"
)

// Valid возвращает true для известного типа действия.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionModelEmbed, ActionModelComplete, ActionTransform, ActionStorageWrite:
		return true
	default:
		return false
	}
}

// Pipeline — именованная последовательность узлов обработки документов.
//
// Pipeline — только метаданные: у него нет состояния выполнения.
// Один pipeline имеет множество версий (PipelineVersion); каждый
// ingested документ привязывается к конкретной версии и проходит её
// до конца, даже если позже опубликована новая.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя (например, "articles", "support-tickets").
	Name string `json:"name"`

	// IsActive — неактивные pipelines не принимают новые документы.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineVersion — версия pipeline с конкретной спецификацией.
//
// Версия неизменяема после создания: правки создают новую версию,
// чтобы in-flight документы оставались воспроизводимыми.
type PipelineVersion struct {
	// PipelineID — ссылка на родительский pipeline.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Spec — спецификация: схема входа и последовательность узлов.
	Spec PipelineSpec `json:"spec"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineSpec — спецификация pipeline (содержимое JSONB поля spec).
type PipelineSpec struct {
	// Name — имя pipeline (дублирует Pipeline.Name для удобства).
	Name string `json:"name,omitempty"`

	// Description — назначение pipeline.
	Description string `json:"description,omitempty"`

	// InputSchema — имена полей, которые гарантированно присутствуют
	// в каждом ingested документе. Используется при валидации
	// producer/consumer цепочки.
	InputSchema []string `json:"input_schema"`

	// Defaults — настройки по умолчанию для всех узлов.
	Defaults *NodeDefaults `json:"defaults,omitempty"`

	// Nodes — упорядоченная последовательность узлов.
	// Документ проходит узлы строго по порядку, по одному за task.
	Nodes []NodeDef `json:"nodes"`
}

// NodeDefaults — настройки по умолчанию для узлов.
type NodeDefaults struct {
	// Retry — политика повторных попыток.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// TimeoutSec — таймаут внешнего вызова в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// NodeDef — определение узла pipeline.
//
// Узел — чистые метаданные: какие поля документа он читает, какие
// производит, каким шаблоном строится инструкция и какому action
// она передаётся.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках pipeline.
	ID string `json:"id"`

	// Name — человекочитаемое имя узла.
	Name string `json:"name,omitempty"`

	// Action — тип действия: model_embed, model_complete, transform,
	// storage_write.
	Action ActionKind `json:"action"`

	// TemplateID — шаблон, из которого рендерится инструкция.
	TemplateID uuid.UUID `json:"template_id"`

	// TemplateVersion — конкретная версия шаблона. Узел всегда привязан
	// к версии, чтобы исторические прогоны были воспроизводимы.
	TemplateVersion int `json:"template_version"`

	// InputFields — поля документа, которые узел читает.
	// Каждое должно производиться ingestion-схемой или строго более
	// ранним узлом (проверяется при регистрации pipeline).
	InputFields []string `json:"input_fields"`

	// OutputFields — поля, которые узел обязан произвести.
	// Результат action должен покрывать их в точности.
	OutputFields []string `json:"output_fields"`

	// Options — специфичная для action конфигурация (имя модели и т.п.).
	Options map[string]any `json:"options,omitempty"`

	// Retry — политика повторных попыток узла.
	// Переопределяет defaults.retry.
	Retry *RetryPolicy `json:"retry,omitempty"`

	// TimeoutSec — таймаут внешнего вызова для этого узла.
	// Переопределяет defaults.timeout_sec.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// MaxRetryDelay — предельная задержка между попытками, которую обязана
// выдерживать реализация очереди. Политики с задержкой больше этой
// отклоняются при регистрации pipeline.
const MaxRetryDelay = 10 * time.Minute

// RetryPolicy — политика повторных попыток для transient ошибок.
type RetryPolicy struct {
	// MaxAttempts — максимальное число попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	// Не может превышать MaxRetryDelay.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// DefaultRetryPolicy — политика, применяемая когда ни узел, ни defaults
// её не задают.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	Backoff:        "exponential",
	InitialDelayMs: 1000,
	MaxDelayMs:     30000,
}

// RetryPolicyFor возвращает действующую политику retry для узла:
// узел → defaults → DefaultRetryPolicy.
func (s *PipelineSpec) RetryPolicyFor(node *NodeDef) RetryPolicy {
	if node.Retry != nil {
		return *node.Retry
	}
	if s.Defaults != nil && s.Defaults.Retry != nil {
		return *s.Defaults.Retry
	}
	return DefaultRetryPolicy
}

// TimeoutFor возвращает действующий таймаут внешнего вызова для узла.
func (s *PipelineSpec) TimeoutFor(node *NodeDef) time.Duration {
	sec := node.TimeoutSec
	if sec <= 0 && s.Defaults != nil {
		sec = s.Defaults.TimeoutSec
	}
	if sec <= 0 {
		sec = 60
	}
	return time.Duration(sec) * time.Second
}
