// Loom API — HTTP-вход движка.
//
// API:
//   - Регистрирует pipelines и шаблоны (с полной валидацией спецификаций)
//   - Принимает батчи документов (ingestion → очередь задач)
//   - Отдаёт состояние прохождения и готовые документы
//
// Горячий путь выполнения через API не идёт: координаторы общаются
// с очередью и БД напрямую.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Loom/internal/api"
	"github.com/shaiso/Loom/internal/ingest"
	"github.com/shaiso/Loom/internal/queue"
	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/store"
	"github.com/shaiso/Loom/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loom-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории и хранилище документов
	pipelineRepo := repo.NewPipelineRepo(pool)
	templateRepo := repo.NewTemplateRepo(pool)
	runRepo := repo.NewRunRepo(pool)
	documents := store.NewPostgresStore(pool)

	// Очередь задач: ingestion ставит task первого узла
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = queue.DefaultURL()
	}
	conn, err := queue.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := queue.SetupTopology(conn); err != nil {
		logger.Warn("failed to setup queue topology", "error", err)
	}

	tasks := queue.NewAMQPQueue(conn, logger)

	ingestor, err := ingest.New(ingest.Config{
		Pipelines: pipelineRepo,
		Runs:      runRepo,
		Tasks:     tasks,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create ingest service", "error", err)
		os.Exit(1)
	}
	defer ingestor.Close()

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		PipelineRepo: pipelineRepo,
		TemplateRepo: templateRepo,
		RunRepo:      runRepo,
		Ingestor:     ingestor,
		Documents:    documents,
		Logger:       logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
