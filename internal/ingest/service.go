package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/metrics"
	"github.com/shaiso/Loom/internal/queue"
)

// Pipelines — доступ ingestion к определениям pipelines.
type Pipelines interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
	GetLatestVersion(ctx context.Context, pipelineID uuid.UUID) (*domain.PipelineVersion, error)
}

// RunCreator создаёт состояние прохождения для принятого документа.
type RunCreator interface {
	Create(ctx context.Context, state *domain.RunState) error
}

// Service принимает батчи документов в pipelines.
//
// Приём документа: проверка payload против ingestion-схемы, создание
// состояния (cursor=0, PENDING), постановка task первого узла. Batch
// раскладывается по пулу воркеров; документы независимы, отказ одного
// не трогает остальные.
type Service struct {
	pipelines Pipelines
	runs      RunCreator
	tasks     queue.TaskQueue

	pool   *ants.Pool
	logger *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	// Pipelines — определения pipelines (обязательно).
	Pipelines Pipelines

	// Runs — хранилище состояний (обязательно).
	Runs RunCreator

	// Tasks — очередь задач (обязательно).
	Tasks queue.TaskQueue

	// PoolSize — размер пула для параллельного приёма батча
	// (default: NumCPU/2, минимум 1).
	PoolSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) (*Service, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() / 2
		if poolSize < 1 {
			poolSize = 1
		}
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("new ingest pool: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		pipelines: cfg.Pipelines,
		runs:      cfg.Runs,
		tasks:     cfg.Tasks,
		pool:      pool,
		logger:    logger,
	}, nil
}

// Close освобождает пул воркеров.
func (s *Service) Close() {
	s.pool.Release()
}

// Result — итог приёма одного payload из батча.
type Result struct {
	// Index — позиция payload в батче.
	Index int `json:"index"`

	// DocID — идентификатор принятого документа (нулевой при отказе).
	DocID uuid.UUID `json:"doc_id,omitempty"`

	// Error — причина отказа (пусто при успехе).
	Error string `json:"error,omitempty"`
}

// Receipt — итог приёма батча.
type Receipt struct {
	// PipelineID — pipeline, принявший батч.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Version — версия, зафиксированная для всех принятых документов.
	Version int `json:"version"`

	// Accepted — число принятых документов.
	Accepted int `json:"accepted"`

	// Results — по-документные итоги в порядке батча.
	Results []Result `json:"results"`
}

// Ingest принимает батч документов в pipeline.
//
// Каждый принятый документ привязывается к последней опубликованной
// версии на момент приёма; публикация новой версии не влияет на уже
// принятые документы. Ошибка возвращается только для отказа всего
// батча (нет pipeline, нет версий); по-документные отказы живут в
// Receipt.
func (s *Service) Ingest(ctx context.Context, pipelineID uuid.UUID, payloads []map[string]any) (*Receipt, error) {
	if len(payloads) == 0 {
		return nil, ErrNoPayloads
	}

	pipeline, err := s.pipelines.Get(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}
	if !pipeline.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPipelineInactive, pipeline.Name)
	}

	version, err := s.pipelines.GetLatestVersion(ctx, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoVersions, pipelineID)
	}

	receipt := &Receipt{
		PipelineID: pipelineID,
		Version:    version.Version,
		Results:    make([]Result, len(payloads)),
	}

	var wg sync.WaitGroup
	for i := range payloads {
		i := i
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			receipt.Results[i] = s.ingestOne(ctx, version, i, payloads[i])
		})
		if submitErr != nil {
			wg.Done()
			receipt.Results[i] = Result{Index: i, Error: submitErr.Error()}
		}
	}
	wg.Wait()

	for _, r := range receipt.Results {
		if r.Error == "" {
			receipt.Accepted++
		}
	}

	s.logger.Info("batch ingested",
		"pipeline_id", pipelineID,
		"version", version.Version,
		"total", len(payloads),
		"accepted", receipt.Accepted,
	)
	return receipt, nil
}

// ingestOne принимает один payload: валидация, состояние, первый task.
func (s *Service) ingestOne(ctx context.Context, version *domain.PipelineVersion, index int, payload map[string]any) Result {
	if err := validatePayload(&version.Spec, payload); err != nil {
		return Result{Index: index, Error: err.Error()}
	}

	docID := uuid.New()
	state := domain.NewRunState(docID, version, payload)

	// Состояние коммитится до постановки task: доставка без состояния
	// была бы отброшена, состояние без доставки подберёт polling fallback
	if err := s.runs.Create(ctx, state); err != nil {
		return Result{Index: index, Error: fmt.Sprintf("create run state: %v", err)}
	}

	task := domain.NewTask(state, 0, 0, time.Time{})
	if err := s.tasks.Enqueue(ctx, task, time.Time{}); err != nil {
		s.logger.Warn("failed to enqueue first task, poll fallback will recover",
			"doc_id", docID,
			"error", err,
		)
	}

	metrics.DocumentsIngested.Inc()
	return Result{Index: index, DocID: docID}
}

// validatePayload проверяет payload против ingestion-схемы.
func validatePayload(spec *domain.PipelineSpec, payload map[string]any) error {
	for field := range payload {
		if domain.IsProtectedField(field) {
			return fmt.Errorf("%w: %q", ErrProtectedField, field)
		}
	}
	for _, field := range spec.InputSchema {
		if _, ok := payload[field]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingInputField, field)
		}
	}
	return nil
}
