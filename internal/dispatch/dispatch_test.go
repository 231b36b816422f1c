package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/store"
)

func testInvocation(node *domain.NodeDef, rendered string) *Invocation {
	return &Invocation{
		Token:    "test:0:0",
		Doc:      &domain.Document{DocID: uuid.New(), Fields: map[string]any{}},
		Node:     node,
		Rendered: rendered,
		Inputs:   map[string]any{},
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{"explicit transient", Transient(base), true},
		{"explicit permanent", Permanent(base), false},
		{"unclassified defaults to transient", base, true},
		{"deadline exceeded is transient", context.DeadlineExceeded, true},
		{"wrapped permanent stays permanent", Permanentf("wrap: %w", base), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if IsTransient(got) != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(got), tt.wantTransient)
			}
			if IsPermanent(got) == tt.wantTransient {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(got), !tt.wantTransient)
			}
		})
	}
}

func TestClassifyPreservesCause(t *testing.T) {
	base := errors.New("connection refused")
	got := Classify(base)
	if !errors.Is(got, base) {
		t.Error("classified error should unwrap to the cause")
	}
}

func TestTransformAction(t *testing.T) {
	action := NewTransformAction()
	node := &domain.NodeDef{ID: "t", Action: domain.ActionTransform, OutputFields: []string{"summary"}}

	t.Run("valid JSON object", func(t *testing.T) {
		outputs, err := action.Execute(context.Background(), testInvocation(node, `{"summary": "short"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if outputs["summary"] != "short" {
			t.Errorf("summary = %v, want %q", outputs["summary"], "short")
		}
	})

	t.Run("malformed JSON is permanent", func(t *testing.T) {
		_, err := action.Execute(context.Background(), testInvocation(node, `{"summary": `))
		if !IsPermanent(err) {
			t.Errorf("expected permanent error, got %v", err)
		}
		if !errors.Is(err, ErrBadInstruction) {
			t.Errorf("expected ErrBadInstruction, got %v", err)
		}
	})

	t.Run("JSON null is permanent", func(t *testing.T) {
		_, err := action.Execute(context.Background(), testInvocation(node, `null`))
		if !IsPermanent(err) {
			t.Errorf("expected permanent error, got %v", err)
		}
	})
}

func TestDispatcherOutputContract(t *testing.T) {
	node := &domain.NodeDef{
		ID:           "extract",
		Action:       domain.ActionTransform,
		OutputFields: []string{"title", "body"},
	}

	tests := []struct {
		name    string
		outputs map[string]any
		wantErr bool
	}{
		{"exact coverage", map[string]any{"title": "a", "body": "b"}, false},
		{"missing field", map[string]any{"title": "a"}, true},
		{"undeclared extra field", map[string]any{"title": "a", "body": "b", "lang": "en"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			registry.Register(domain.ActionTransform, NewScriptedAction(ScriptedReply{Outputs: tt.outputs}))
			d := New(Config{Registry: registry})

			_, err := d.Invoke(context.Background(), testInvocation(node, ""))
			if tt.wantErr {
				if !IsPermanent(err) {
					t.Fatalf("expected permanent contract error, got %v", err)
				}
				if !errors.Is(err, ErrOutputContract) {
					t.Errorf("expected ErrOutputContract, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
		})
	}
}

func TestDispatcherUnknownActionIsPermanent(t *testing.T) {
	d := New(Config{Registry: NewRegistry()})
	node := &domain.NodeDef{ID: "n", Action: domain.ActionModelEmbed, OutputFields: []string{"v"}}

	_, err := d.Invoke(context.Background(), testInvocation(node, ""))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

// blockingAction висит до отмены контекста.
type blockingAction struct{}

func (blockingAction) Execute(ctx context.Context, _ *Invocation) (map[string]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatcherTimeoutIsTransient(t *testing.T) {
	registry := NewRegistry()
	registry.Register(domain.ActionModelComplete, blockingAction{})
	d := New(Config{Registry: registry})

	node := &domain.NodeDef{ID: "slow", Action: domain.ActionModelComplete, OutputFields: []string{"x"}}
	inv := testInvocation(node, "")
	inv.Timeout = 10 * time.Millisecond

	_, err := d.Invoke(context.Background(), inv)
	if !IsTransient(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestStorageAction(t *testing.T) {
	mem := store.NewMemoryStore()
	action := NewStorageAction(mem)

	node := &domain.NodeDef{
		ID:           "persist",
		Action:       domain.ActionStorageWrite,
		InputFields:  []string{"text", "vector"},
		OutputFields: []string{"stored_at"},
	}

	inv := testInvocation(node, "")
	inv.Inputs = map[string]any{"text": "hello", "vector": []float32{0.1}, "ignored": true}

	outputs, err := action.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outputs["stored_at"] == "" {
		t.Error("stored_at output is empty")
	}

	saved, err := mem.Get(context.Background(), inv.Doc.DocID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if saved.Fields["text"] != "hello" {
		t.Errorf("saved text = %v, want %q", saved.Fields["text"], "hello")
	}
	if _, ok := saved.Fields["ignored"]; ok {
		t.Error("fields outside input_fields must not be stored")
	}

	// Повторное выполнение перезаписывает тот же снимок
	if _, err := action.Execute(context.Background(), inv); err != nil {
		t.Fatalf("repeat Execute: %v", err)
	}
	if mem.Len() != 1 {
		t.Errorf("document count = %d, want 1", mem.Len())
	}
}

func TestStorageActionRequiresSingleOutput(t *testing.T) {
	action := NewStorageAction(store.NewMemoryStore())
	node := &domain.NodeDef{
		ID:           "persist",
		Action:       domain.ActionStorageWrite,
		OutputFields: []string{"a", "b"},
	}

	_, err := action.Execute(context.Background(), testInvocation(node, ""))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestMockEmbedDeterministic(t *testing.T) {
	action := &MockEmbedAction{Dim: 4}
	node := &domain.NodeDef{ID: "embed", Action: domain.ActionModelEmbed, OutputFields: []string{"vector"}}

	first, err := action.Execute(context.Background(), testInvocation(node, "same text"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := action.Execute(context.Background(), testInvocation(node, "same text"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	a := first["vector"].([]float32)
	b := second["vector"].([]float32)
	if len(a) != 4 {
		t.Fatalf("vector dim = %d, want 4", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestParseModelJSONStripsFences(t *testing.T) {
	parsed, err := parseModelJSON("```json\n{\"keywords\": [\"a\"]}\n```")
	if err != nil {
		t.Fatalf("parseModelJSON: %v", err)
	}
	if _, ok := parsed["keywords"]; !ok {
		t.Error("keywords key missing")
	}
}

func TestInvocationToken(t *testing.T) {
	docID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	state := &domain.RunState{DocID: docID}

	got := InvocationToken(state, 2, 1)
	want := "11111111-2222-3333-4444-555555555555:2:1"
	if got != want {
		t.Errorf("InvocationToken = %q, want %q", got, want)
	}

	// Тот же (документ, узел, попытка) — тот же token
	if InvocationToken(state, 2, 1) != got {
		t.Error("token must be deterministic")
	}
}
