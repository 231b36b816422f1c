package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
)

// TemplateLookup разрешает ссылку узла на версию шаблона.
// Возвращает nil, если версия не существует.
type TemplateLookup func(id uuid.UUID, version int) *domain.Template

// Validate выполняет полную валидацию спецификации pipeline.
//
// Вызывается при регистрации, не при выполнении: некорректная
// спецификация отклоняется до того, как хоть один документ на неё
// сослался, и никогда не всплывает как per-document ошибка.
//
// Проверяет:
//   - последовательность узлов непуста, ID уникальны, action известны
//   - producer/consumer цепочку: каждое входное поле узла производится
//     ingestion-схемой или строго более ранним узлом
//   - выходные поля не пересекаются с полями идентичности документа
//     и не производятся дважды
//   - ссылки на шаблоны разрешаются, и шаблон ссылается только на
//     объявленные входные поля узла
//   - политики retry корректны
func Validate(spec *domain.PipelineSpec, templates TemplateLookup) error {
	if spec == nil || len(spec.Nodes) == 0 {
		return ErrEmptyNodes
	}

	if spec.Defaults != nil && spec.Defaults.Retry != nil {
		if err := validateRetry(spec.Defaults.Retry); err != nil {
			return NewValidationError("", "defaults.retry", err.Error(), ErrBadRetryPolicy)
		}
	}

	// Поля, доступные следующему узлу: ingestion-схема плюс выходы
	// всех предыдущих узлов.
	available := make(map[string]bool, len(spec.InputSchema))
	for _, f := range spec.InputSchema {
		available[f] = true
	}

	nodeIDs := make(map[string]bool, len(spec.Nodes))

	for i := range spec.Nodes {
		node := &spec.Nodes[i]

		if node.ID == "" {
			return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
		}
		if nodeIDs[node.ID] {
			return NewValidationError(node.ID, "id",
				fmt.Sprintf("duplicate node ID %q", node.ID), ErrDuplicateNodeID)
		}
		nodeIDs[node.ID] = true

		if !node.Action.Valid() {
			return NewValidationError(node.ID, "action",
				fmt.Sprintf("unknown action kind %q", node.Action), ErrUnknownAction)
		}

		if node.Retry != nil {
			if err := validateRetry(node.Retry); err != nil {
				return NewValidationError(node.ID, "retry", err.Error(), ErrBadRetryPolicy)
			}
		}

		// Входные поля: каждое должно уже производиться.
		for _, in := range node.InputFields {
			if !available[in] {
				return NewValidationError(node.ID, in,
					fmt.Sprintf("input field %q is not produced by the ingestion schema or an earlier node", in),
					ErrUnboundInput)
			}
		}

		// Выходные поля: непусты, не защищены, не производятся дважды.
		if len(node.OutputFields) == 0 {
			return NewValidationError(node.ID, "output_fields",
				"node declares no output fields", ErrEmptyOutputs)
		}
		for _, out := range node.OutputFields {
			if domain.IsProtectedField(out) {
				return NewValidationError(node.ID, out,
					fmt.Sprintf("output field %q is a protected identity field", out),
					ErrProtectedOutput)
			}
			if available[out] {
				return NewValidationError(node.ID, out,
					fmt.Sprintf("output field %q is already produced upstream", out),
					ErrDuplicateOutput)
			}
		}

		// Шаблон: существует и ссылается только на объявленные входы.
		if err := validateTemplate(node, templates); err != nil {
			return err
		}

		for _, out := range node.OutputFields {
			available[out] = true
		}
	}

	return nil
}

// validateTemplate проверяет ссылку узла на шаблон и его биндинги.
func validateTemplate(node *domain.NodeDef, templates TemplateLookup) error {
	if templates == nil {
		return nil
	}

	tpl := templates(node.TemplateID, node.TemplateVersion)
	if tpl == nil {
		return NewValidationError(node.ID, "template_id",
			fmt.Sprintf("template %s v%d not found", node.TemplateID, node.TemplateVersion),
			ErrTemplateNotFound)
	}

	refs, err := TemplateFields(tpl.Body)
	if err != nil {
		return NewValidationError(node.ID, "template_id", err.Error(), err)
	}

	declared := make(map[string]bool, len(node.InputFields))
	for _, in := range node.InputFields {
		declared[in] = true
	}

	for _, ref := range refs {
		if !declared[ref] {
			return NewValidationError(node.ID, ref,
				fmt.Sprintf("template references field %q which is not a declared input", ref),
				ErrUndeclaredTemplateField)
		}
	}

	return nil
}

// validateRetry проверяет корректность политики retry.
func validateRetry(p *domain.RetryPolicy) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	switch p.Backoff {
	case "", "fixed", "exponential":
	default:
		return fmt.Errorf("unknown backoff strategy %q", p.Backoff)
	}
	if p.InitialDelayMs < 0 || p.MaxDelayMs < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if p.MaxDelayMs > 0 && p.InitialDelayMs > p.MaxDelayMs {
		return fmt.Errorf("initial_delay_ms exceeds max_delay_ms")
	}
	// Задержка больше этой не может быть выдержана очередью
	capMs := int(domain.MaxRetryDelay / time.Millisecond)
	if p.MaxDelayMs > capMs || p.InitialDelayMs > capMs {
		return fmt.Errorf("delay exceeds the %v redelivery limit", domain.MaxRetryDelay)
	}
	return nil
}
