package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
)

// testTemplates возвращает lookup по фиксированному набору шаблонов.
func testTemplates(tpls ...*domain.Template) TemplateLookup {
	return func(id uuid.UUID, version int) *domain.Template {
		for _, tpl := range tpls {
			if tpl.ID == id && tpl.Version == version {
				return tpl
			}
		}
		return nil
	}
}

func TestValidate_ProducerConsumerChain(t *testing.T) {
	extractTpl := &domain.Template{ID: uuid.New(), Version: 1, Body: "extract keyterms from {{ .text }}"}
	embedTpl := &domain.Template{ID: uuid.New(), Version: 1, Body: "{{ .text }} {{ join \" \" .keyterms }}"}
	lookup := testTemplates(extractTpl, embedTpl)

	spec := &domain.PipelineSpec{
		InputSchema: []string{"text"},
		Nodes: []domain.NodeDef{
			{
				ID:              "extract",
				Action:          domain.ActionModelComplete,
				TemplateID:      extractTpl.ID,
				TemplateVersion: 1,
				InputFields:     []string{"text"},
				OutputFields:    []string{"keyterms"},
			},
			{
				ID:              "embed",
				Action:          domain.ActionModelEmbed,
				TemplateID:      embedTpl.ID,
				TemplateVersion: 1,
				InputFields:     []string{"text", "keyterms"},
				OutputFields:    []string{"embedding"},
			},
		},
	}

	if err := Validate(spec, lookup); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tpl := &domain.Template{ID: uuid.New(), Version: 1, Body: "{{ .text }}"}
	lookup := testTemplates(tpl)

	node := func(id string, inputs, outputs []string) domain.NodeDef {
		return domain.NodeDef{
			ID:              id,
			Action:          domain.ActionTransform,
			TemplateID:      tpl.ID,
			TemplateVersion: 1,
			InputFields:     inputs,
			OutputFields:    outputs,
		}
	}

	tests := []struct {
		name     string
		spec     *domain.PipelineSpec
		expected error
	}{
		{
			name:     "empty nodes",
			spec:     &domain.PipelineSpec{InputSchema: []string{"text"}},
			expected: ErrEmptyNodes,
		},
		{
			name: "unbound input field",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				// embedding никем не производится: узел ссылается на поле,
				// которого не будет ни в payload, ни в выходах ранних узлов
				Nodes: []domain.NodeDef{node("a", []string{"text", "embedding"}, []string{"out"})},
			},
			expected: ErrUnboundInput,
		},
		{
			name: "consumer before producer",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes: []domain.NodeDef{
					node("embed", []string{"text", "keyterms"}, []string{"embedding"}),
					node("extract", []string{"text"}, []string{"keyterms"}),
				},
			},
			expected: ErrUnboundInput,
		},
		{
			name: "protected output field",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes:       []domain.NodeDef{node("a", []string{"text"}, []string{"doc_id"})},
			},
			expected: ErrProtectedOutput,
		},
		{
			name: "duplicate output producer",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes: []domain.NodeDef{
					node("a", []string{"text"}, []string{"summary"}),
					node("b", []string{"text"}, []string{"summary"}),
				},
			},
			expected: ErrDuplicateOutput,
		},
		{
			name: "duplicate node ID",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes: []domain.NodeDef{
					node("a", []string{"text"}, []string{"x"}),
					node("a", []string{"text"}, []string{"y"}),
				},
			},
			expected: ErrDuplicateNodeID,
		},
		{
			name: "no output fields",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes:       []domain.NodeDef{node("a", []string{"text"}, nil)},
			},
			expected: ErrEmptyOutputs,
		},
		{
			name: "unknown action",
			spec: &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes: []domain.NodeDef{{
					ID:           "a",
					Action:       "teleport",
					InputFields:  []string{"text"},
					OutputFields: []string{"x"},
				}},
			},
			expected: ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec, lookup)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestValidate_TemplateBindings(t *testing.T) {
	tpl := &domain.Template{ID: uuid.New(), Version: 1, Body: "{{ .text }} {{ .title }}"}
	lookup := testTemplates(tpl)

	spec := &domain.PipelineSpec{
		InputSchema: []string{"text", "title"},
		Nodes: []domain.NodeDef{{
			ID:              "a",
			Action:          domain.ActionTransform,
			TemplateID:      tpl.ID,
			TemplateVersion: 1,
			// title используется шаблоном, но не объявлен входным полем
			InputFields:  []string{"text"},
			OutputFields: []string{"out"},
		}},
	}

	err := Validate(spec, lookup)
	if !errors.Is(err, ErrUndeclaredTemplateField) {
		t.Errorf("expected ErrUndeclaredTemplateField, got %v", err)
	}

	// После объявления title спецификация валидна
	spec.Nodes[0].InputFields = []string{"text", "title"}
	if err := Validate(spec, lookup); err != nil {
		t.Errorf("spec with declared fields rejected: %v", err)
	}
}

func TestValidate_TemplateNotFound(t *testing.T) {
	spec := &domain.PipelineSpec{
		InputSchema: []string{"text"},
		Nodes: []domain.NodeDef{{
			ID:              "a",
			Action:          domain.ActionTransform,
			TemplateID:      uuid.New(),
			TemplateVersion: 7,
			InputFields:     []string{"text"},
			OutputFields:    []string{"out"},
		}},
	}

	err := Validate(spec, testTemplates())
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestValidate_RetryPolicy(t *testing.T) {
	tpl := &domain.Template{ID: uuid.New(), Version: 1, Body: "{{ .text }}"}
	lookup := testTemplates(tpl)

	overCapMs := int(domain.MaxRetryDelay/time.Millisecond) + 1

	tests := []struct {
		name    string
		retry   *domain.RetryPolicy
		wantErr bool
	}{
		{"zero attempts", &domain.RetryPolicy{MaxAttempts: 0}, true},
		{"unknown backoff", &domain.RetryPolicy{MaxAttempts: 2, Backoff: "jittered"}, true},
		{"initial above max", &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 2000, MaxDelayMs: 1000}, true},
		{"max delay above redelivery limit", &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 1000, MaxDelayMs: overCapMs}, true},
		{"initial delay above redelivery limit", &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: overCapMs}, true},
		{"delay at the redelivery limit", &domain.RetryPolicy{MaxAttempts: 2, InitialDelayMs: 1000, MaxDelayMs: overCapMs - 1}, false},
		{"sane policy", &domain.RetryPolicy{MaxAttempts: 3, Backoff: "exponential", InitialDelayMs: 100, MaxDelayMs: 5000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := &domain.PipelineSpec{
				InputSchema: []string{"text"},
				Nodes: []domain.NodeDef{{
					ID:              "a",
					Action:          domain.ActionTransform,
					TemplateID:      tpl.ID,
					TemplateVersion: 1,
					InputFields:     []string{"text"},
					OutputFields:    []string{"out"},
					Retry:           tt.retry,
				}},
			}

			err := Validate(spec, lookup)
			if tt.wantErr && !errors.Is(err, ErrBadRetryPolicy) {
				t.Errorf("expected ErrBadRetryPolicy, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
