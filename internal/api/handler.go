package api

import (
	"log/slog"

	"github.com/shaiso/Loom/internal/ingest"
	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/store"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipelineRepo *repo.PipelineRepo
	templateRepo *repo.TemplateRepo
	runRepo      *repo.RunRepo
	ingestor     *ingest.Service
	documents    store.Store
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	PipelineRepo *repo.PipelineRepo
	TemplateRepo *repo.TemplateRepo
	RunRepo      *repo.RunRepo
	Ingestor     *ingest.Service
	Documents    store.Store
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipelineRepo: cfg.PipelineRepo,
		templateRepo: cfg.TemplateRepo,
		runRepo:      cfg.RunRepo,
		ingestor:     cfg.Ingestor,
		documents:    cfg.Documents,
		logger:       logger,
	}
}
