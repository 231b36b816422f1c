package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_Placeholders(t *testing.T) {
	fields := map[string]any{
		"text":  "hello world",
		"count": 42,
		"tags":  []string{"a", "b", "c"},
	}

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "plain text",
			body:     "no placeholders here",
			expected: "no placeholders here",
		},
		{
			name:     "string field",
			body:     "Summarize: {{ .text }}",
			expected: "Summarize: hello world",
		},
		{
			name:     "number field",
			body:     "count={{ .count }}",
			expected: "count=42",
		},
		{
			name:     "conditional true",
			body:     "{{ if .text }}has text{{ end }}",
			expected: "has text",
		},
		{
			name:     "truncate filter",
			body:     "{{ .text | truncate 5 }}",
			expected: "hello",
		},
		{
			name:     "truncate longer than value",
			body:     "{{ .text | truncate 100 }}",
			expected: "hello world",
		},
		{
			name:     "join filter",
			body:     `{{ join ", " .tags }}`,
			expected: "a, b, c",
		},
		{
			name:     "upper filter",
			body:     "{{ .text | upper }}",
			expected: "HELLO WORLD",
		},
		{
			name:     "default on present value",
			body:     `{{ .text | default "none" }}`,
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.body, fields)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_MissingField(t *testing.T) {
	fields := map[string]any{"text": "hello"}

	_, err := Render("{{ .keyterms }}", fields)
	if err == nil {
		t.Fatal("expected error for missing field")
	}

	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %T: %v", err, err)
	}
	if missing.Field != "keyterms" {
		t.Errorf("expected field name keyterms, got %q", missing.Field)
	}

	// Повторный вызов даёт ту же именованную ошибку, не пустую подстановку
	_, err2 := Render("{{ .keyterms }}", fields)
	var missing2 *MissingFieldError
	if !errors.As(err2, &missing2) || missing2.Field != missing.Field {
		t.Errorf("missing field error is not stable: %v vs %v", err, err2)
	}
}

func TestRender_Deterministic(t *testing.T) {
	fields := map[string]any{
		"text":  "the quick brown fox",
		"model": "ada-002",
	}
	body := `Embed with {{ .model }}: {{ .text | truncate 9 }}`

	first, err := Render(body, fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		got, err := Render(body, fields)
		if err != nil {
			t.Fatalf("unexpected error on repeat %d: %v", i, err)
		}
		if got != first {
			t.Fatalf("render is not deterministic: %q vs %q", first, got)
		}
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .text", map[string]any{"text": "x"})
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}
}

func TestRender_NilFields(t *testing.T) {
	result, err := Render("static", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "static" {
		t.Errorf("expected static, got %q", result)
	}
}

func TestTemplateFields(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []string
	}{
		{
			name:     "no fields",
			body:     "static text",
			expected: []string{},
		},
		{
			name:     "single field",
			body:     "{{ .text }}",
			expected: []string{"text"},
		},
		{
			name:     "duplicates collapse",
			body:     "{{ .text }} and {{ .text }}",
			expected: []string{"text"},
		},
		{
			name:     "sorted multiple",
			body:     "{{ .title }}: {{ .body }}",
			expected: []string{"body", "title"},
		},
		{
			name:     "inside conditional",
			body:     "{{ if .flag }}{{ .text }}{{ end }}",
			expected: []string{"flag", "text"},
		},
		{
			name:     "inside filter pipe",
			body:     "{{ .text | truncate 10 }}",
			expected: []string{"text"},
		},
		{
			name:     "nested access uses root",
			body:     "{{ .meta.author }}",
			expected: []string{"meta"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := TemplateFields(tt.body)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(fields) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, fields)
			}
			for i := range fields {
				if fields[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, fields)
					break
				}
			}
		})
	}
}

func TestTemplateFields_ParseError(t *testing.T) {
	_, err := TemplateFields("{{ if }}")
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
