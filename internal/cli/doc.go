// Package cli реализует инструмент командной строки Loom.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Loom API.
// Работает через HTTP, не импортирует внутренние пакеты движка.
// CLI используется для управления pipelines и шаблонами, приёма
// документов и наблюдения за их прохождением.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Loom API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	pipelines, err := client.ListPipelines()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы с выравниванием по ширине колонок — по умолчанию;
//     для документов — карта полей с однострочным просмотром значений
//   - JSON (json.Encoder с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: loom pipeline list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - pipeline: list, create, show, activate, deactivate, publish, version
//   - template: list, create, show
//   - ingest: приём батча документов из файла
//   - run: show, cancel
//   - document: show
//
// Спецификации pipeline и батчи payload'ов читаются из YAML или JSON
// файлов; YAML конвертируется в JSON перед отправкой в API.
//
// Каждая группа создаётся через фабричную функцию (NewPipelineCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
