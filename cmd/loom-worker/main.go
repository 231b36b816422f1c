// Loom Worker — координатор прохождения документов.
//
// Worker:
//   - Получает tasks из RabbitMQ (по одному узлу за task)
//   - Рендерит инструкцию узла и выполняет её action
//   - Коммитит новое состояние до постановки следующего task
//   - Повторяет временные сбои с exponential backoff
//   - Переставляет потерянные доставки через polling fallback
//
// Workers масштабируются горизонтально: optimistic concurrency
// по revision защищает от дубликатов доставок.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Loom/internal/coordinator"
	"github.com/shaiso/Loom/internal/dispatch"
	"github.com/shaiso/Loom/internal/domain"
	"github.com/shaiso/Loom/internal/queue"
	"github.com/shaiso/Loom/internal/registry"
	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/store"
	"github.com/shaiso/Loom/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting loom-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории, кэш определений, хранилище документов
	runRepo := repo.NewRunRepo(pool)
	pipelineRepo := repo.NewPipelineRepo(pool)
	templateRepo := repo.NewTemplateRepo(pool)
	defs := registry.New(pipelineRepo, templateRepo)
	documents := store.NewPostgresStore(pool)

	// RabbitMQ
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

	// Actions: model-узлы идут в OpenAI-совместимый сервис; без
	// MODEL_BASE_URL — детерминированные mock'и для локальной разработки
	actions := dispatch.NewRegistry()
	actions.Register(domain.ActionTransform, dispatch.NewTransformAction())
	actions.Register(domain.ActionStorageWrite, dispatch.NewStorageAction(documents))

	if baseURL := os.Getenv("MODEL_BASE_URL"); baseURL != "" {
		modelCfg := dispatch.ModelConfig{
			BaseURL:         baseURL,
			Token:           os.Getenv("MODEL_API_TOKEN"),
			EmbeddingModel:  envOr("EMBEDDING_MODEL", "nomic-embed-text"),
			CompletionModel: envOr("COMPLETION_MODEL", "llama3"),
		}

		embed, err := dispatch.NewEmbedAction(modelCfg)
		if err != nil {
			logger.Error("failed to create embed action", "error", err)
			os.Exit(1)
		}
		complete, err := dispatch.NewCompleteAction(modelCfg)
		if err != nil {
			logger.Error("failed to create complete action", "error", err)
			os.Exit(1)
		}

		actions.Register(domain.ActionModelEmbed, embed)
		actions.Register(domain.ActionModelComplete, complete)
		logger.Info("model service configured", "base_url", baseURL)
	} else {
		actions.Register(domain.ActionModelEmbed, &dispatch.MockEmbedAction{})
		actions.Register(domain.ActionModelComplete, &dispatch.MockCompleteAction{})
		logger.Warn("MODEL_BASE_URL not set, model nodes use deterministic mocks")
	}

	dispatcher := dispatch.New(dispatch.Config{Registry: actions, Logger: logger})

	// Координатор: polling fallback + обработка доставок
	coord := coordinator.New(coordinator.Config{
		RunStates:   runRepo,
		Definitions: defs,
		Invoker:     dispatcher,
		Tasks:       tasks,
		Documents:   documents,
		Logger:      logger,
	})

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	// Consumer запускается отдельно: его обработчик — сам координатор
	prefetch, _ := strconv.Atoi(os.Getenv("WORKER_PREFETCH"))
	consumer := queue.NewAMQPConsumer(conn, logger, queue.ConsumerConfig{
		Handler:  coord.HandleDelivery,
		Prefetch: prefetch,
	})

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer error", "error", err)
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	consumer.Stop()
	<-consumerDone
	coord.Stop()
	logger.Info("loom-worker stopped")
}

// envOr возвращает значение переменной окружения или default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
