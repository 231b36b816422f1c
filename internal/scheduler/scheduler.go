package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Loom/internal/domain"
)

// Default configuration values.
const (
	defaultRetention   = 7 * 24 * time.Hour
	defaultBatchSize   = 500
	defaultArchiveSpec = "@hourly"
)

// RunArchiver — доступ планировщика к терминальным состояниям.
type RunArchiver interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RunState, error)
	Archive(ctx context.Context, docID uuid.UUID) error
}

// Scheduler — фоновое обслуживание движка.
//
// По cron-расписанию переносит терминальные состояния прохождения
// старше окна retention в архивную таблицу. Рабочая таблица остаётся
// маленькой: горячий путь координатора читает и пишет только
// незавершённые прохождения.
type Scheduler struct {
	runs      RunArchiver
	retention time.Duration
	batchSize int

	cron   *cron.Cron
	logger *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	// Runs — хранилище состояний (обязательно).
	Runs RunArchiver

	// Retention — возраст терминального состояния, после которого оно
	// архивируется (default: 7 суток).
	Retention time.Duration

	// ArchiveSpec — cron-выражение запуска архивации (default: @hourly).
	ArchiveSpec string

	// BatchSize — количество состояний за один тик (default: 500).
	BatchSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runs:      cfg.Runs,
		retention: retention,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start запускает cron-расписание.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		spec = defaultArchiveSpec
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.ArchiveTick(context.Background()); err != nil {
			s.logger.Error("archive tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add archive job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"archive_spec", spec,
		"retention", s.retention,
	)
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего тика.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// ArchiveTick выполняет один тик архивации.
//
// Ошибка одного состояния не блокирует остальные.
func (s *Scheduler) ArchiveTick(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)

	states, err := s.runs.ListTerminalBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("list terminal run states: %w", err)
	}

	if len(states) == 0 {
		return nil
	}

	var archived int
	for i := range states {
		state := &states[i]

		if err := s.runs.Archive(ctx, state.DocID); err != nil {
			s.logger.Error("failed to archive run state",
				"doc_id", state.DocID,
				"error", err,
			)
			continue
		}
		archived++
	}

	s.logger.Info("archive tick completed",
		"eligible", len(states),
		"archived", archived,
	)
	return nil
}
