// Loom Scheduler — фоновое обслуживание движка.
//
// По cron-расписанию архивирует терминальные состояния прохождения
// старше окна retention, чтобы рабочая таблица координаторов
// оставалась маленькой.
//
// Запускается в нескольких экземплярах безопасно: лидер выбирается
// через Postgres advisory lock, остальные экземпляры ждут.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Loom/internal/repo"
	"github.com/shaiso/Loom/internal/scheduler"
	"github.com/shaiso/Loom/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting loom-scheduler")

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

	runRepo := repo.NewRunRepo(pool)

	retention := 7 * 24 * time.Hour
	if v := os.Getenv("RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			retention = d
		} else {
			logger.Warn("invalid RETENTION, using default", "value", v)
		}
	}

	sched := scheduler.New(scheduler.Config{
		Runs:      runRepo,
		Retention: retention,
		Logger:    logger,
	})

	// Лидерство: cron запускается только у держателя advisory lock
	go func() {
		tk := time.NewTicker(5 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if hasLock {
					continue
				}

				var ok bool
				if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
					logger.Error("advisory lock error", "error", err)
					continue
				}
				if !ok {
					// не лидер — пропускаем тик
					continue
				}

				hasLock = true
				logger.Info("became scheduler leader")
				if err := sched.Start(os.Getenv("ARCHIVE_CRON")); err != nil {
					logger.Error("failed to start scheduler", "error", err)
					cancel()
					return
				}
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	logger.Info("loom-scheduler stopped")
}
