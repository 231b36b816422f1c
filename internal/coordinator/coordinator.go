package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Loom/internal/dispatch"
	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/queue"
	"github.com/shaiso/Loom/internal/store"
)

// Default configuration values.
const (
	defaultPollInterval  = 30 * time.Second
	defaultStaleHorizon  = 5 * time.Minute
	defaultPollBatchSize = 100
)

// RunStates — доступ координатора к состояниям прохождения.
type RunStates interface {
	Get(ctx context.Context, docID uuid.UUID) (*domain.RunState, error)
	UpdateCAS(ctx context.Context, state *domain.RunState) error
	ListStale(ctx context.Context, horizon time.Duration, limit int) ([]domain.RunState, error)
}

// Definitions — доступ координатора к определениям pipelines и шаблонов.
type Definitions interface {
	PipelineVersion(ctx context.Context, pipelineID uuid.UUID, version int) (*domain.PipelineVersion, error)
	Template(ctx context.Context, id uuid.UUID, version int) (*domain.Template, error)
}

// Invoker выполняет узел и возвращает классифицированную ошибку.
type Invoker interface {
	Invoke(ctx context.Context, inv *dispatch.Invocation) (map[string]any, error)
}

// Coordinator продвигает документы через pipelines.
//
// Coordinator — единственный писатель состояний прохождения:
//   - Получает tasks из очереди (event-driven)
//   - Рендерит инструкцию узла и выполняет её через Invoker
//   - Коммитит новое состояние до постановки следующего task
//   - Повторяет временные сбои с backoff, завершает постоянные
//   - Периодически переставляет потерянные доставки (polling fallback)
//
// Координаторы масштабируются горизонтально: optimistic concurrency
// по revision гарантирует, что дубликаты доставок не переплетают
// свои записи.
type Coordinator struct {
	runs      RunStates
	defs      Definitions
	invoker   Invoker
	tasks     queue.TaskQueue
	documents store.Store

	consumer queue.Consumer

	pollInterval time.Duration
	staleHorizon time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Coordinator.
type Config struct {
	// RunStates — хранилище состояний (обязательно).
	RunStates RunStates

	// Definitions — кэш определений (обязательно).
	Definitions Definitions

	// Invoker — диспетчер узлов (обязательно).
	Invoker Invoker

	// Tasks — очередь задач (обязательно).
	Tasks queue.TaskQueue

	// Documents — приёмник готовых документов (обязательно).
	Documents store.Store

	// Consumer — источник доставок. nil — координатор работает только
	// через polling fallback (или обрабатывается тестами напрямую).
	Consumer queue.Consumer

	// PollInterval — интервал поиска потерянных доставок (default: 30s).
	PollInterval time.Duration

	// StaleHorizon — возраст незавершённого состояния, после которого
	// его task считается потерянным (default: 5m).
	StaleHorizon time.Duration

	// BatchSize — количество состояний за один poll (default: 100).
	BatchSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Coordinator.
func New(cfg Config) *Coordinator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	staleHorizon := cfg.StaleHorizon
	if staleHorizon <= 0 {
		staleHorizon = defaultStaleHorizon
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPollBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		runs:         cfg.RunStates,
		defs:         cfg.Definitions,
		invoker:      cfg.Invoker,
		tasks:        cfg.Tasks,
		documents:    cfg.Documents,
		consumer:     cfg.Consumer,
		pollInterval: pollInterval,
		staleHorizon: staleHorizon,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Coordinator.
//
// Запускает:
//   - Consumer для tasks.ready
//   - Polling горутину для потерянных доставок
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.logger.Info("starting coordinator",
		"poll_interval", c.pollInterval,
		"stale_horizon", c.staleHorizon,
	)

	if c.consumer != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("task consumer error", "error", err)
			}
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	c.logger.Info("coordinator started")
	return nil
}

// Stop останавливает Coordinator.
func (c *Coordinator) Stop() {
	c.stoppedMu.Lock()
	c.stopped = true
	c.stoppedMu.Unlock()

	c.logger.Info("stopping coordinator...")

	if c.cancelFunc != nil {
		c.cancelFunc()
	}

	if c.consumer != nil {
		c.consumer.Stop()
	}

	c.wg.Wait()

	c.logger.Info("coordinator stopped")
}

// IsStopped проверяет, остановлен ли Coordinator.
func (c *Coordinator) IsStopped() bool {
	c.stoppedMu.RLock()
	defer c.stoppedMu.RUnlock()
	return c.stopped
}

// HandleDelivery — обработчик доставок для queue.Consumer.
//
// Возврат nil подтверждает доставку; к этому моменту новое состояние
// уже закоммичено и производные tasks поставлены. Ошибка возвращает
// сообщение в очередь для повторной доставки.
func (c *Coordinator) HandleDelivery(ctx context.Context, d *queue.Delivery) error {
	return c.Process(ctx, &d.Task)
}

// pollLoop — цикл поиска потерянных доставок.
func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем состояния, застрявшие
	// пока координаторы были выключены)
	c.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll переставляет в очередь task для каждого незавершённого
// состояния, не обновлявшегося дольше staleHorizon.
//
// Прохождения, припаркованные на retry backoff, сюда не попадают:
// ListStale исключает состояния с next_attempt_at в будущем, так что
// перестановка не может выполнить узел раньше его not_before.
// Дубликат безопасен: если исходная доставка всё же дойдёт, staleness
// guard отбросит проигравшего.
func (c *Coordinator) poll(ctx context.Context) {
	states, err := c.runs.ListStale(ctx, c.staleHorizon, c.batchSize)
	if err != nil {
		c.logger.Error("failed to list stale run states", "error", err)
		return
	}

	if len(states) == 0 {
		return
	}

	c.logger.Debug("poll found stale run states", "count", len(states))

	for i := range states {
		state := &states[i]
		task := domain.NewTask(state, state.Cursor, state.Attempt, state.NextAttemptAt)

		if err := c.tasks.Enqueue(ctx, task, state.NextAttemptAt); err != nil {
			c.logger.Error("failed to requeue stale task",
				"doc_id", state.DocID,
				"node_index", state.Cursor,
				"error", err,
			)
			continue
		}

		c.logger.Info("requeued stale task",
			"doc_id", state.DocID,
			"node_index", state.Cursor,
			"attempt", state.Attempt,
		)
	}
}
