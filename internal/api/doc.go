// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (репозитории, ingest, хранилище, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - pipeline_handler.go — обработчики для /pipelines
//   - template_handler.go — обработчики для /templates
//   - ingest_handler.go   — приём батчей документов
//   - run_handler.go      — состояние прохождения, отмена, готовые документы
//
// API предоставляет REST endpoints для управления pipelines, шаблонами
// и наблюдения за прохождением документов. Горячий путь выполнения
// документов через API не идёт: координатор общается с очередью и БД
// напрямую.
package api
