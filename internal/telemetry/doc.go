// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает structured logging через slog: единый формат для всех
// сервисов, уровень и формат задаются переменными окружения
// LOG_LEVEL и LOG_FORMAT. Prometheus метрики живут в пакете metrics;
// все сервисы экспортируют их на /metrics endpoint.
package telemetry
