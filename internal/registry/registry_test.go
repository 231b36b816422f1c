package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/repo"
)

// fakeVersionLoader считает обращения к хранилищу.
type fakeVersionLoader struct {
	versions map[int]*domain.PipelineVersion
	calls    int
}

func (f *fakeVersionLoader) GetVersion(_ context.Context, _ uuid.UUID, version int) (*domain.PipelineVersion, error) {
	f.calls++
	v, ok := f.versions[version]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

type fakeTemplateLoader struct {
	templates map[templateKey]*domain.Template
	calls     int
}

func (f *fakeTemplateLoader) Get(_ context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	f.calls++
	t, ok := f.templates[templateKey{id: id, version: version}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t, nil
}

func TestRegistryCachesPipelineVersion(t *testing.T) {
	pipelineID := uuid.New()
	loader := &fakeVersionLoader{
		versions: map[int]*domain.PipelineVersion{
			1: {PipelineID: pipelineID, Version: 1, Spec: domain.PipelineSpec{Name: "extract"}},
		},
	}
	r := New(loader, &fakeTemplateLoader{})

	for i := 0; i < 3; i++ {
		v, err := r.PipelineVersion(context.Background(), pipelineID, 1)
		if err != nil {
			t.Fatalf("PipelineVersion: %v", err)
		}
		if v.Spec.Name != "extract" {
			t.Errorf("Spec.Name = %q, want %q", v.Spec.Name, "extract")
		}
	}

	if loader.calls != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls)
	}
}

func TestRegistryDistinctVersionsLoadedSeparately(t *testing.T) {
	pipelineID := uuid.New()
	loader := &fakeVersionLoader{
		versions: map[int]*domain.PipelineVersion{
			1: {PipelineID: pipelineID, Version: 1},
			2: {PipelineID: pipelineID, Version: 2},
		},
	}
	r := New(loader, &fakeTemplateLoader{})

	if _, err := r.PipelineVersion(context.Background(), pipelineID, 1); err != nil {
		t.Fatalf("version 1: %v", err)
	}
	if _, err := r.PipelineVersion(context.Background(), pipelineID, 2); err != nil {
		t.Fatalf("version 2: %v", err)
	}

	if loader.calls != 2 {
		t.Errorf("loader calls = %d, want 2", loader.calls)
	}
	if r.Size() != 2 {
		t.Errorf("Size() = %d, want 2", r.Size())
	}
}

func TestRegistryPipelineVersionNotFound(t *testing.T) {
	r := New(&fakeVersionLoader{versions: map[int]*domain.PipelineVersion{}}, &fakeTemplateLoader{})

	_, err := r.PipelineVersion(context.Background(), uuid.New(), 7)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestRegistryCachesTemplate(t *testing.T) {
	id := uuid.New()
	loader := &fakeTemplateLoader{
		templates: map[templateKey]*domain.Template{
			{id: id, version: 3}: {ID: id, Version: 3, Body: "{{.text}}"},
		},
	}
	r := New(&fakeVersionLoader{}, loader)

	for i := 0; i < 2; i++ {
		tmpl, err := r.Template(context.Background(), id, 3)
		if err != nil {
			t.Fatalf("Template: %v", err)
		}
		if tmpl.Body != "{{.text}}" {
			t.Errorf("Body = %q, want %q", tmpl.Body, "{{.text}}")
		}
	}

	if loader.calls != 1 {
		t.Errorf("loader calls = %d, want 1", loader.calls)
	}
}
