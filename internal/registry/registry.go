package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/domain"
)

// VersionLoader загружает версию pipeline из хранилища.
type VersionLoader interface {
	GetVersion(ctx context.Context, pipelineID uuid.UUID, version int) (*domain.PipelineVersion, error)
}

// TemplateLoader загружает версию шаблона из хранилища.
type TemplateLoader interface {
	Get(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error)
}

// Registry — кэш определений pipelines и шаблонов.
//
// Определения read-mostly: версия неизменяема после создания, поэтому
// закэшированная запись никогда не протухает. Каждая доставка task
// резолвит (pipeline_id, version) через Registry, не трогая БД после
// первого чтения.
type Registry struct {
	versions  VersionLoader
	templates TemplateLoader

	mu       sync.RWMutex
	specs    map[versionKey]*domain.PipelineVersion
	bodies   map[templateKey]*domain.Template
}

type versionKey struct {
	pipelineID uuid.UUID
	version    int
}

type templateKey struct {
	id      uuid.UUID
	version int
}

// New создаёт новый Registry.
func New(versions VersionLoader, templates TemplateLoader) *Registry {
	return &Registry{
		versions:  versions,
		templates: templates,
		specs:     make(map[versionKey]*domain.PipelineVersion),
		bodies:    make(map[templateKey]*domain.Template),
	}
}

// PipelineVersion возвращает версию pipeline, загружая её при первом
// обращении.
func (r *Registry) PipelineVersion(ctx context.Context, pipelineID uuid.UUID, version int) (*domain.PipelineVersion, error) {
	key := versionKey{pipelineID: pipelineID, version: version}

	r.mu.RLock()
	v, ok := r.specs[key]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := r.versions.GetVersion(ctx, pipelineID, version)
	if err != nil {
		return nil, fmt.Errorf("load pipeline version %s v%d: %w", pipelineID, version, err)
	}

	r.mu.Lock()
	r.specs[key] = v
	r.mu.Unlock()
	return v, nil
}

// Template возвращает версию шаблона, загружая её при первом обращении.
func (r *Registry) Template(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error) {
	key := templateKey{id: id, version: version}

	r.mu.RLock()
	t, ok := r.bodies[key]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := r.templates.Get(ctx, id, version)
	if err != nil {
		return nil, fmt.Errorf("load template %s v%d: %w", id, version, err)
	}

	r.mu.Lock()
	r.bodies[key] = t
	r.mu.Unlock()
	return t, nil
}

// Size возвращает количество закэшированных записей.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs) + len(r.bodies)
}
